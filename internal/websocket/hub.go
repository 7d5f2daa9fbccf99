package websocket

import (
	"context"
	"sort"
	"sync"
)

type Hub struct {
	mu         sync.RWMutex
	Rooms      map[string]*Room
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *WSMessage
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *WSMessage, 64),
		done:       make(chan struct{}),
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) RoomIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.Rooms))
	for id := range h.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClientCount returns how many clients are connected to room.
func (h *Hub) ClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.Rooms[roomID]; ok {
		return len(room.Clients)
	}
	return 0
}

// Run owns room membership. Rooms are created by the first client to join
// and dropped with the last one.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.mu.Lock()
			room, ok := h.Rooms[client.RoomID]
			if !ok {
				room = &Room{Id: client.RoomID, Clients: make(map[string]*WSClient)}
				h.Rooms[client.RoomID] = room
				setRooms(len(h.Rooms))
			}
			room.Clients[client.ID] = client
			clientJoined(client.RoomID)
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if room, ok := h.Rooms[client.RoomID]; ok {
				if _, ok := room.Clients[client.ID]; ok {
					delete(room.Clients, client.ID)
					close(client.Message)
					clientLeft(client.RoomID)
				}
				if len(room.Clients) == 0 {
					delete(h.Rooms, client.RoomID)
					setRooms(len(h.Rooms))
				}
			}
			h.mu.Unlock()

		case message := <-h.Broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) deliver(message *WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.Rooms[message.RoomID]
	if !ok {
		return
	}
	delivered := 0
	for _, client := range room.Clients {
		select {
		case client.Message <- message:
			delivered++
		default:
			// Slow consumer; it reconnects and polls.
			close(client.Message)
			delete(room.Clients, client.ID)
			clientLeft(room.Id)
			eventDropped("slow_consumer")
		}
	}
	if len(room.Clients) == 0 {
		delete(h.Rooms, room.Id)
		setRooms(len(h.Rooms))
	}
	if delivered > 0 {
		eventsDelivered(room.Id, delivered)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.Rooms {
		for cid, client := range room.Clients {
			close(client.Message)
			delete(room.Clients, cid)
			clientLeft(id)
		}
		delete(h.Rooms, id)
	}
	setRooms(0)
}
