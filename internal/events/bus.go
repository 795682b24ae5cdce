// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/cadenza-music/cadenza/internal/logging"
)

// Bus is the in-process event transport. Publishing never blocks the pass
// loop beyond the channel buffer.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus creates the transport.
func NewBus() *Bus {
	logger := NewLoggerAdapter()
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger),
		logger: logger,
	}
}

// Publish marshals payload and sends it on topic. A closed bus drops the
// event with a warning rather than failing the pass.
func (b *Bus) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Failed to encode event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}

// Subscriber exposes the underlying transport for router wiring.
func (b *Bus) Subscriber() message.Subscriber { return b.pubsub }

// Subscribe returns the raw message stream for a topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the transport down; in-flight deliveries are abandoned.
func (b *Bus) Close() error { return b.pubsub.Close() }

// Decode unmarshals a message payload into T.
func Decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return v, nil
}
