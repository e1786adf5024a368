package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

const Topic = "bracket.notifications"

var ErrQueueClosed = errors.New("notification queue is closed")

// Queue is the Gateway backed by a watermill publisher.
type Queue struct {
	publisher message.Publisher
}

func NewQueue(publisher message.Publisher) *Queue {
	return &Queue{publisher: publisher}
}

func (q *Queue) Enqueue(ctx context.Context, event Event) error {
	if q == nil || q.publisher == nil {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := q.publisher.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

func encodeEvent(event Event) (*message.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	middleware.SetCorrelationID(event.ID.String(), msg)
	msg.Metadata.Set("event_type", string(event.Type))
	return msg, nil
}

func decodeEvent(msg *message.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return Event{}, fmt.Errorf("failed to decode notification %s: %w", msg.UUID, err)
	}
	return event, nil
}
