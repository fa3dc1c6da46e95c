// Package channels provides the ChatChannel interface for chat platform integrations.
package channels

import (
	"context"

	"github.com/hrygo/taskgraph/plugin/chat_apps"
)

// ChatChannel defines the interface for a chat platform integration. Only
// Telegram implements it; the interface stays platform-shaped (rather than
// collapsed to SendMessage alone) so a second transport can be added the
// same way.
type ChatChannel interface {
	// Name returns the platform name (e.g., "telegram").
	Name() chat_apps.Platform

	// ValidateWebhook verifies the incoming webhook request.
	ValidateWebhook(ctx context.Context, headers map[string]string, body []byte) error

	// ParseMessage parses the incoming webhook payload into an IncomingMessage.
	ParseMessage(ctx context.Context, payload []byte) (*chat_apps.IncomingMessage, error)

	// SendMessage sends a single message to the chat platform.
	SendMessage(ctx context.Context, msg *chat_apps.OutgoingMessage) error

	// SendChunkedMessage sends streaming content chunks.
	SendChunkedMessage(ctx context.Context, chatID string, chunks <-chan string) error

	// DownloadMedia downloads media from the platform's CDN.
	DownloadMedia(ctx context.Context, url string) ([]byte, string, error)

	// Close closes any open connections and releases resources.
	Close() error
}

// ErrNoChannelForPlatform is returned when no channel is registered for a
// requested platform.
var ErrNoChannelForPlatform = &ChannelError{Code: "NO_CHANNEL", Message: "no channel registered for platform"}

// ChannelError represents an error in channel operations.
type ChannelError struct {
	Code    string
	Message string
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ErrInvalidPayload is returned when a webhook payload cannot be parsed.
var ErrInvalidPayload = &ChannelError{Code: "INVALID_PAYLOAD", Message: "could not parse webhook payload"}

// ErrMediaDownloadFailed is returned when downloading media from a platform's CDN fails.
var ErrMediaDownloadFailed = &ChannelError{Code: "MEDIA_FAILED", Message: "failed to download media"}
