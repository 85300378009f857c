package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Passport/internal/domain/events"
	"google.golang.org/protobuf/types/known/structpb"
)

const EventAccountRegistered = "account.registered"

var _ events.AccountEvents = (*AccountEventsKafka)(nil)

type AccountEventsKafka struct {
	p *Producer
}

func NewAccountEventsKafka(p *Producer) *AccountEventsKafka { return &AccountEventsKafka{p: p} }

// PublishAccountRegistered keys the message by account id so every event of
// one account lands on the same partition.
func (e *AccountEventsKafka) PublishAccountRegistered(ctx context.Context, ev events.AccountRegistered) error {
	payload, err := AccountRegisteredStruct(ev)
	if err != nil {
		return err
	}
	return e.p.Publish(ctx, Event{Key: ev.AccountID, Type: EventAccountRegistered, Body: payload})
}

func AccountRegisteredStruct(ev events.AccountRegistered) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"event":         EventAccountRegistered,
		"account_id":    ev.AccountID,
		"email":         ev.Email,
		"registered_at": ev.RegisteredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("build %s payload: %w", EventAccountRegistered, err)
	}
	return s, nil
}
