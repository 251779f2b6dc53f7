package alert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisPublisher(t *testing.T) (*RedisPublisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &RedisPublisher{Client: client, Channel: "reliability.alerts"}, client
}

func TestRedisPublisherPublishesToChannel(t *testing.T) {
	pub, client := newTestRedisPublisher(t)

	sub := client.Subscribe(context.Background(), pub.Channel)
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	a := &model.Alert{ID: 1, ServiceID: 42, AlertType: TypeBurnRateHigh, Title: "burn rate high", Timestamp: time.Now()}
	require.NoError(t, pub.Publish(context.Background(), a))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var got model.Alert
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, a.ServiceID, got.ServiceID)
	require.Equal(t, a.AlertType, got.AlertType)
}

func TestRedisPublisherErrorsOnClosedConnection(t *testing.T) {
	pub, client := newTestRedisPublisher(t)
	require.NoError(t, client.Close())

	a := &model.Alert{ID: 2, ServiceID: 7, AlertType: TypeRecovery, Timestamp: time.Now()}
	err := pub.Publish(context.Background(), a)
	require.Error(t, err)
}

func TestMultiPublisherJoinsFailures(t *testing.T) {
	pub, client := newTestRedisPublisher(t)
	require.NoError(t, client.Close()) // force this leg to fail

	multi := MultiPublisher{Publishers: []Publisher{pub, NoopPublisher{}}}
	a := &model.Alert{ID: 3, ServiceID: 9, AlertType: TypeBudgetExhausted, Timestamp: time.Now()}
	err := multi.Publish(context.Background(), a)
	require.Error(t, err)
}
