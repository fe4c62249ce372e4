package messaging

import (
	"encoding/json"
	"log"
)

// frame is the wire format relayed between instances.
type frame struct {
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
	ExcludeUser string          `json:"exclude_user,omitempty"`
}

// LocalRooms is the room fan-out the relay delivers into.
type LocalRooms interface {
	Broadcast(roomID, event string, payload interface{}, excludeUser string)
}

// LocalUsers is the per-user fan-out the relay delivers into.
type LocalUsers interface {
	SendToUser(userID, event string, payload interface{})
}

// Relay routes room broadcasts and user notifications through NATS so every
// instance (including the publishing one, via loopback) delivers to its own
// sessions. It implements the pipeline's Broadcaster and Notifier, and the
// room manager's and registry's watcher interfaces for subscription
// lifecycle.
type Relay struct {
	client *NATSClient
	rooms  LocalRooms
	users  LocalUsers
}

// NewRelay wires a relay over an established NATS client.
func NewRelay(client *NATSClient, rooms LocalRooms, users LocalUsers) *Relay {
	return &Relay{client: client, rooms: rooms, users: users}
}

// Broadcast publishes a room event. Delivery to local sessions happens in
// the room subscription handler.
func (r *Relay) Broadcast(roomID, event string, payload interface{}, excludeUser string) {
	data, err := encodeFrame(event, payload, excludeUser)
	if err != nil {
		log.Printf("relay: encode %s for room=%s: %v", event, roomID, err)
		return
	}
	if err := r.client.Publish(RoomSubject(roomID), data); err != nil {
		log.Printf("relay: publish room=%s: %v", roomID, err)
	}
}

// SendToUser publishes a user event. Delivery to the user's local sessions
// happens in the user subscription handler.
func (r *Relay) SendToUser(userID, event string, payload interface{}) {
	data, err := encodeFrame(event, payload, "")
	if err != nil {
		log.Printf("relay: encode %s for user=%s: %v", event, userID, err)
		return
	}
	if err := r.client.Publish(UserSubject(userID), data); err != nil {
		log.Printf("relay: publish user=%s: %v", userID, err)
	}
}

// RoomActive subscribes to the room's subject when it gains its first local
// occupant.
func (r *Relay) RoomActive(roomID string) {
	err := r.client.Subscribe("room:"+roomID, RoomSubject(roomID), func(data []byte) {
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("relay: decode room=%s: %v", roomID, err)
			return
		}
		r.rooms.Broadcast(roomID, f.Event, f.Payload, f.ExcludeUser)
	})
	if err != nil {
		log.Printf("relay: subscribe room=%s: %v", roomID, err)
	}
}

// RoomIdle drops the room subscription when the last local occupant leaves.
func (r *Relay) RoomIdle(roomID string) {
	if err := r.client.Unsubscribe("room:" + roomID); err != nil {
		log.Printf("relay: %v", err)
	}
}

// UserOnline subscribes to the user's subject when their first session
// registers.
func (r *Relay) UserOnline(userID string) {
	err := r.client.Subscribe("user:"+userID, UserSubject(userID), func(data []byte) {
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("relay: decode user=%s: %v", userID, err)
			return
		}
		r.users.SendToUser(userID, f.Event, f.Payload)
	})
	if err != nil {
		log.Printf("relay: subscribe user=%s: %v", userID, err)
	}
}

// UserOffline drops the user subscription when their last session goes.
func (r *Relay) UserOffline(userID string) {
	if err := r.client.Unsubscribe("user:" + userID); err != nil {
		log.Printf("relay: %v", err)
	}
}

func encodeFrame(event string, payload interface{}, excludeUser string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Event: event, Payload: raw, ExcludeUser: excludeUser})
}
