package broker

import (
	"context"
	"encoding/json"
	"testing"

	"distribution-service/internal/models"
	"distribution-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	keys   []string
	events []interface{}
}

func (p *recordingPublisher) PublishEvent(_ context.Context, key string, event interface{}) error {
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}

func TestEventPublisherKeys(t *testing.T) {
	rec := &recordingPublisher{}
	ep := NewEventPublisher(rec)
	ctx := context.Background()

	require.NoError(t, ep.PublishBalanceChanged(ctx, &models.BalanceChangedEvent{AccountID: "agent"}))
	require.NoError(t, ep.PublishRequestEvent(ctx, &models.RequestEvent{RequestID: "r1"}))
	require.NoError(t, ep.PublishOrderEvent(ctx, &models.OrderEvent{OrderID: "o1"}))
	require.NoError(t, ep.PublishImportCompleted(ctx, &models.ImportCompletedEvent{SellerAccount: "branch"}))

	assert.Equal(t, []string{"account-agent", "request-r1", "order-o1", "import-branch"}, rec.keys)
}

func TestEventHandlerRoutesBalanceChanged(t *testing.T) {
	util.SetLogger(zap.NewNop())
	handler := NewEventHandler()

	var got *models.BalanceChangedEvent
	handler.OnBalanceChanged(func(_ context.Context, e *models.BalanceChangedEvent) error {
		got = e
		return nil
	})

	event := models.BalanceChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeBalanceChanged),
		AccountID: "master",
		ProductID: "serum",
		Delta:     -30,
		Quantity:  70,
		Kind:      models.MovementTransfer,
		Reference: "req-1",
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: body}))
	require.NotNil(t, got)
	assert.Equal(t, event.EventID, got.EventID)
	assert.Equal(t, int64(70), got.Quantity)
	assert.Equal(t, "req-1", got.Reference)
}

func TestEventHandlerIgnoresOtherEvents(t *testing.T) {
	util.SetLogger(zap.NewNop())
	handler := NewEventHandler()

	called := false
	handler.OnBalanceChanged(func(context.Context, *models.BalanceChangedEvent) error {
		called = true
		return nil
	})

	body, err := json.Marshal(models.RequestEvent{BaseEvent: models.NewBaseEvent(models.EventTypeRequestApproved)})
	require.NoError(t, err)
	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: body}))
	assert.False(t, called)

	assert.Error(t, handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("nope")}))
}
