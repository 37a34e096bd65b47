// Package historystore defines the port interface for answer persistence.
package historystore

import (
	"context"

	"github.com/askadmit/askadmit/internal/domain/answer"
)

// Store persists the full tracking bundle for every processed question.
type Store interface {
	SaveAnswer(ctx context.Context, a *answer.Answer) error
	GetAnswer(ctx context.Context, id string) (*answer.Answer, error)
}
