// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces change channels in Valkey.
const channelPrefix = "docstore:"

// ValkeyNotifier publishes change signals over Valkey pub/sub so every
// server instance sharing the database refreshes its subscriptions. One
// pattern subscription per process feeds a local fan-out hub.
type ValkeyNotifier struct {
	client *redis.Client
	local  *LocalNotifier
}

// NewValkeyNotifier creates a notifier. Call Run to start receiving.
func NewValkeyNotifier(client *redis.Client) *ValkeyNotifier {
	return &ValkeyNotifier{client: client, local: NewLocalNotifier()}
}

// ChannelFor returns the pub/sub channel of a collection.
func ChannelFor(collection string) string {
	return channelPrefix + collection
}

// Publish announces a change to all instances, including this one.
func (n *ValkeyNotifier) Publish(ctx context.Context, collection string) error {
	if err := n.client.Publish(ctx, ChannelFor(collection), "changed").Err(); err != nil {
		return fmt.Errorf("valkey publish: %w", err)
	}
	return nil
}

// Listen registers a local listener; signals arrive once Run is receiving.
func (n *ValkeyNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	return n.local.Listen(ctx, collection)
}

// Run receives change messages until ctx is cancelled. Every
// (re)subscription confirmation triggers a refresh of all listeners, since
// messages published while the connection was down are lost.
func (n *ValkeyNotifier) Run(ctx context.Context) error {
	ps := n.client.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()

	slog.Info("docstore change feed started", "pattern", channelPrefix+"*")

	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("docstore change feed receive error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			slog.Debug("docstore change feed subscribed", "kind", m.Kind, "channel", m.Channel)
			n.local.Broadcast()
		case *redis.Message:
			n.local.Publish(ctx, strings.TrimPrefix(m.Channel, channelPrefix))
		}
	}
}
