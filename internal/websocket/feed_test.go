package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livechat-backend/internal/model"
	sessionservice "livechat-backend/internal/service/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

func startFeedServer(t *testing.T, redisClient *redis.Client) (*Handler, *Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)
	handler := NewHandler(hub, redisClient, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.JoinRoom(w, r, r.URL.Query().Get("room"), "tester")
	}))
	t.Cleanup(srv.Close)
	return handler, hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialRoom(t *testing.T, hub *Hub, baseURL, room string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(baseURL+"/?room="+room, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount(room) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered in %s", room)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) feedEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Content feedEvent `json:"content"`
		RoomID  string    `json:"roomId"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return msg.Content
}

func testEvent() sessionservice.Event {
	return sessionservice.Event{
		Type: sessionservice.EventSessionTakeover,
		Session: model.Session{
			ID:       "chat_1",
			UserID:   "u1",
			ChatMode: model.ChatModeLive,
			Status:   model.SessionStatusActive,
			Employee: &model.Employee{ID: "e1", Name: "Employee One"},
			Messages: []model.Message{},
		},
		OccurredAt: time.Now().UTC(),
	}
}

func TestFeedDeliversToSessionAndDashboardRooms(t *testing.T) {
	handler, hub, baseURL := startFeedServer(t, nil)
	widget := dialRoom(t, hub, baseURL, SessionRoom("chat_1"))
	dashboard := dialRoom(t, hub, baseURL, DashboardRoom)

	feed := NewFeed(handler, nil)
	if err := feed.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	for _, conn := range []*websocket.Conn{widget, dashboard} {
		ev := readEvent(t, conn)
		if ev.Type != sessionservice.EventSessionTakeover || ev.ChatID != "chat_1" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Session.EmployeeID() != "e1" {
			t.Fatalf("unexpected employee in event %+v", ev.Session.Employee)
		}
	}
}

func TestFeedRelaysThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	handler, hub, baseURL := startFeedServer(t, client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handler.SubscribeToRedisChannels(ctx)

	widget := dialRoom(t, hub, baseURL, SessionRoom("chat_1"))

	// The publishing side has no local handler, like the widget server.
	feed := NewFeed(nil, client)
	received := make(chan feedEvent, 1)
	go func() {
		var msg struct {
			Content feedEvent `json:"content"`
		}
		widget.SetReadDeadline(time.Now().Add(3 * time.Second))
		if err := widget.ReadJSON(&msg); err == nil {
			received <- msg.Content
		}
	}()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case ev := <-received:
			if ev.ChatID != "chat_1" {
				t.Fatalf("unexpected event %+v", ev)
			}
			return
		case <-tick.C:
			if err := feed.Publish(ctx, testEvent()); err != nil {
				t.Fatalf("Publish error: %v", err)
			}
		case <-deadline:
			t.Fatal("event never relayed")
		}
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	if !check(req) {
		t.Fatal("expected configured origin to pass")
	}
	req.Header.Set("Origin", "https://evil.test")
	if check(req) {
		t.Fatal("expected unknown origin to be rejected")
	}
}

func TestGetRoomsListsActiveRooms(t *testing.T) {
	handler, hub, baseURL := startFeedServer(t, nil)
	dialRoom(t, hub, baseURL, DashboardRoom)

	rec := httptest.NewRecorder()
	handler.GetRooms(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))

	var rooms []RoomRes
	if err := json.NewDecoder(rec.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != DashboardRoom || rooms[0].Clients != 1 {
		t.Fatalf("unexpected rooms %+v", rooms)
	}
}

func TestRoomKind(t *testing.T) {
	cases := map[string]string{
		DashboardRoom:          "dashboard",
		SessionRoom("chat_42"): "session",
		"lobby":                "other",
	}
	for room, want := range cases {
		if got := roomKind(room); got != want {
			t.Fatalf("roomKind(%q) = %q, want %q", room, got, want)
		}
	}
}
