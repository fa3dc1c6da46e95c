// Package telegram adapts the Telegram chat channel (plugin/chat_apps) into
// the notifier.Notifier contract: one structured message per call, rate
// limited and timeout-bounded per spec §5 (Notifier dispatch has a per-call
// timeout, default 10s; timeout is failure, not retry).
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrygo/taskgraph/notifier"
	"github.com/hrygo/taskgraph/plugin/chat_apps"
	"github.com/hrygo/taskgraph/plugin/chat_apps/channels"
)

// ChatIDResolver maps an engine user id to the Telegram chat id it should
// receive messages on. The engine only knows integer user ids; the mapping
// from user to platform credential is an external-collaborator concern
// (spec §1: team/user CRUD is out of scope), so it is injected here rather
// than queried through store.Driver.
type ChatIDResolver func(ctx context.Context, userID int32) (chatID string, err error)

// Config configures the Notifier.
type Config struct {
	Resolve ChatIDResolver
	// Timeout bounds a single Notify call; spec §5 default is 10s.
	Timeout time.Duration
	// RateLimit bounds outgoing messages per second (Telegram itself caps
	// around 30/s per bot); Burst allows short spikes above that rate.
	RateLimit rate.Limit
	Burst     int
}

// Notifier delivers messages over a Telegram ChatChannel.
type Notifier struct {
	channel channels.ChatChannel
	resolve ChatIDResolver
	limiter *rate.Limiter
	timeout time.Duration
}

// New wraps an already-constructed Telegram ChatChannel as a notifier.Notifier.
func New(channel channels.ChatChannel, cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Limit(25)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	return &Notifier{
		channel: channel,
		resolve: cfg.Resolve,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
		timeout: cfg.Timeout,
	}
}

// Notify renders payload into a single text message and sends it through the
// wrapped ChatChannel. Missing resolver entries or wait/send timeouts return
// an error; the caller is expected to record, not retry, the failure.
func (n *Notifier) Notify(ctx context.Context, recipient int32, kind notifier.Kind, payload map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram notifier: rate limit wait: %w", err)
	}

	chatID, err := n.resolve(ctx, recipient)
	if err != nil {
		return fmt.Errorf("telegram notifier: resolve chat id for user %d: %w", recipient, err)
	}

	msg := &chat_apps.OutgoingMessage{
		PlatformChatID: chatID,
		Type:           chat_apps.MessageTypeText,
		Content:        renderText(kind, payload),
	}
	if err := n.channel.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("telegram notifier: send to user %d: %w", recipient, err)
	}
	return nil
}

// renderText turns a kind and a flat payload into a human-readable message.
// The "message" key, when present, already carries the fully-substituted
// ActionEvaluator template and is sent verbatim; other kinds without one
// (deadline reminders) build a line from their known keys.
func renderText(kind notifier.Kind, payload map[string]string) string {
	if msg, ok := payload["message"]; ok {
		return msg
	}
	switch kind {
	case notifier.KindDeadlineApproaching:
		return fmt.Sprintf("Deadline approaching for %q: %s left", payload["task_name"], payload["hours_left"])
	default:
		var b strings.Builder
		b.WriteString(string(kind))
		if name := payload["task_name"]; name != "" {
			b.WriteString(": ")
			b.WriteString(name)
		}
		return b.String()
	}
}

var _ notifier.Notifier = (*Notifier)(nil)
