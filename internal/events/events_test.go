package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promotion-engine/internal/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestManager_PublishDeliversToSubscribers(t *testing.T) {
	m := NewManager(true, zerolog.Nop())

	var mu sync.Mutex
	var got []EventType
	m.Subscribe(EventDirectPromotionReverted, func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type)
		return nil
	})

	m.PublishDirectPromotionReverted(context.Background(), 3)
	m.PublishPromotionRedeemed(context.Background(), models.PromotionUsage{PromotionID: 1})
	m.Wait()

	assert.Equal(t, []EventType{EventDirectPromotionReverted}, got)
}

func TestManager_DisabledDropsEvents(t *testing.T) {
	m := NewManager(false, zerolog.Nop())
	called := false
	m.Subscribe(EventPromotionRedeemed, func(ctx context.Context, e Event) error {
		called = true
		return nil
	})
	m.PublishPromotionRedeemed(context.Background(), models.PromotionUsage{})
	m.Wait()
	assert.False(t, called)
}

func TestManager_HandlerSurvivesCallerCancel(t *testing.T) {
	m := NewManager(true, zerolog.Nop())
	var ctxErr error
	m.Subscribe(EventDirectPromotionApplied, func(ctx context.Context, e Event) error {
		ctxErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.PublishDirectPromotionApplied(ctx, 5, models.ApplyResult{AppliedCount: 2})
	m.Shutdown()

	assert.NoError(t, ctxErr)
}

func TestKafkaSink_EncodesAndKeysEvents(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)
	m := NewManager(true, zerolog.Nop())
	sink.Attach(m)

	m.PublishPromotionRedeemed(context.Background(), models.PromotionUsage{
		ID: "u1", PromotionID: 42, OrderID: "o1", UserID: "user", DiscountAmount: decimal.RequireFromString("12.50"),
	})
	m.Wait()

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, string(EventPromotionRedeemed), string(msg.Headers[0].Value))

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			Usage struct {
				OrderID        string `json:"order_id"`
				DiscountAmount string `json:"discount_amount"`
			} `json:"usage"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "promotion.redeemed", decoded.Type)
	assert.Equal(t, "o1", decoded.Data.Usage.OrderID)
	assert.Equal(t, "12.5", decoded.Data.Usage.DiscountAmount)
}

func TestKafkaSink_WrapsWriterErrors(t *testing.T) {
	sink := NewKafkaSink(&fakeWriter{err: errors.New("broker down")})
	err := sink.Handle(context.Background(), Event{Type: EventDirectPromotionReverted, Data: DirectPromotionRevertedData{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
