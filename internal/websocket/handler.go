package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const channelPrefix = "livechat:feed:"

type Handler struct {
	hub         *Hub
	upgrader    websocket.Upgrader
	redisClient *redis.Client
}

// NewHandler serves feed connections for hub. redisClient may be nil, in
// which case only events published in this process reach the clients.
func NewHandler(hub *Hub, redisClient *redis.Client, allowedOrigins []string) *Handler {
	return &Handler{
		hub:         hub,
		redisClient: redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// JoinRoom upgrades the request and attaches the connection to roomID.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		log.Printf("[websocket] upgrade for %s: %v", roomID, err)
		return
	}

	cl := newClient(conn, userID+"#"+uuid.NewString()[:8], roomID)
	select {
	case h.hub.Register <- cl:
	case <-h.hub.Done():
		conn.Close()
		return
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h.hub)
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	rooms := make([]RoomRes, 0)
	for _, id := range h.hub.RoomIDs() {
		rooms = append(rooms, RoomRes{ID: id, Clients: h.hub.ClientCount(id)})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rooms)
}

// NotifyRoom hands payload to the local hub. A full broadcast queue drops the
// event; clients fall back to polling.
func (h *Handler) NotifyRoom(roomID string, payload []byte) {
	msg := &WSMessage{
		Content:   json.RawMessage(payload),
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
	}
	select {
	case h.hub.Broadcast <- msg:
	default:
		eventDropped("queue_full")
		log.Printf("[websocket] broadcast queue full, dropping event for %s", roomID)
	}
}

// SubscribeToRedisChannels relays every feed channel into the local hub
// until ctx is cancelled.
func (h *Handler) SubscribeToRedisChannels(ctx context.Context) error {
	if h.redisClient == nil {
		<-ctx.Done()
		return nil
	}

	subscriber := h.redisClient.PSubscribe(ctx, channelPrefix+"*")
	defer subscriber.Close()
	if _, err := subscriber.Receive(ctx); err != nil {
		return err
	}
	log.Printf("[websocket] subscribed to %s*", channelPrefix)

	ch := subscriber.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.NotifyRoom(strings.TrimPrefix(msg.Channel, channelPrefix), []byte(msg.Payload))
		}
	}
}
