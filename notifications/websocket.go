package notifications

import (
	"context"
	"strings"

	"github.com/Dosada05/bracket-engine/brackets"
)

type RoomBroadcaster interface {
	BroadcastToRoom(roomID string, message interface{}) error
}

// WebSocketDeliverer pushes every event to the live viewers of the tournament.
type WebSocketDeliverer struct {
	hub RoomBroadcaster
}

func NewWebSocketDeliverer(hub RoomBroadcaster) *WebSocketDeliverer {
	return &WebSocketDeliverer{hub: hub}
}

func (d *WebSocketDeliverer) Name() string { return "websocket" }

func (d *WebSocketDeliverer) Deliver(_ context.Context, event Event) error {
	room := brackets.TournamentRoom(event.TournamentID)
	return d.hub.BroadcastToRoom(room, brackets.WebSocketMessage{
		Type:    socketMessageType(event.Type),
		Payload: event,
		RoomID:  room,
	})
}

// socketMessageType turns "match.dispute_reported" into "MATCH_DISPUTE_REPORTED".
func socketMessageType(t EventType) string {
	return strings.ToUpper(strings.ReplaceAll(string(t), ".", "_"))
}
