package ingestion

import (
	"context"
	"encoding/json"

	apperrors "github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

// MessagePublisher is the part of a broker producer the event publisher
// needs.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *pkgtypes.ProducerMessage) error
}

type brokerEventPublisher struct {
	producer MessagePublisher
	topic    string
}

// NewBrokerEventPublisher publishes case events as JSON to topic, keyed by
// fingerprint so events for one document stay ordered.
func NewBrokerEventPublisher(producer MessagePublisher, topic string) EventPublisher {
	return &brokerEventPublisher{producer: producer, topic: topic}
}

func (p *brokerEventPublisher) PublishCaseEvent(ctx context.Context, evt *CaseEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "encode case event")
	}
	return p.producer.Publish(ctx, &pkgtypes.ProducerMessage{
		Topic:     p.topic,
		Key:       []byte(evt.Fingerprint),
		Value:     body,
		Headers:   map[string]string{"event_type": evt.Type},
		Timestamp: evt.OccurredAt,
	})
}

//Personal.AI order the ending
