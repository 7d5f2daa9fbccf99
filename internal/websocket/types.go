package websocket

import "encoding/json"

const DashboardRoom = "dashboard"

// SessionRoom is the room a widget joins to follow one chat.
func SessionRoom(chatID string) string {
	return "session:" + chatID
}

type Room struct {
	Id      string               `json:"id"`
	Clients map[string]*WSClient `json:"clients"`
}

type WSMessage struct {
	Content   json.RawMessage `json:"content"`
	RoomID    string          `json:"roomId"`
	Timestamp int64           `json:"timestamp"`
}

type RoomRes struct {
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}
