// Copyright 2025 James Ross
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Publisher fans an alert out to a transport. Manager treats dispatch
// failures as non-fatal: the alert is already persisted by the time it is
// published, so a broken pipe degrades delivery, not correctness.
type Publisher interface {
	Publish(ctx context.Context, a *model.Alert) error
}

// RedisPublisher publishes alerts to a Redis pub/sub channel for any
// subscriber (dashboard, chatops bridge) listening live.
type RedisPublisher struct {
	Client  *redis.Client
	Channel string
}

func (p *RedisPublisher) Publish(ctx context.Context, a *model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.Client.Publish(ctx, p.Channel, payload).Err()
}

// NATSPublisher publishes alerts to a NATS subject, giving downstream
// services (PagerDuty bridge, Slack bot) a fan-out point independent of
// the Redis channel. It is a plain core NATS publish; messages are not
// persisted for subscribers that are offline.
type NATSPublisher struct {
	Conn    *nats.Conn
	Subject string
}

func (p *NATSPublisher) Publish(ctx context.Context, a *model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.Conn.Publish(p.Subject, payload)
}

// MultiPublisher fans out to every configured publisher and reports all
// failures together rather than stopping at the first.
type MultiPublisher struct {
	Publishers []Publisher
}

func (m MultiPublisher) Publish(ctx context.Context, a *model.Alert) error {
	var errs []error
	for _, p := range m.Publishers {
		if err := p.Publish(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopPublisher discards alerts; used in tests and when no real-time
// transport is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, a *model.Alert) error { return nil }
