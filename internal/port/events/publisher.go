// Package events defines the port interface for answer lifecycle events.
package events

import "context"

// Publisher emits answer lifecycle events for downstream consumers
// (notifications, analytics). Publishing is best-effort: the engine logs
// failures and never fails a request over them.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}
