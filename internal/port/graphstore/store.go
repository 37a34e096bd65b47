// Package graphstore defines the port interface for the graph database.
package graphstore

import (
	"context"
	"errors"

	"github.com/askadmit/askadmit/internal/domain/graph"
)

// Store is the port interface for executing graph queries.
type Store interface {
	// Execute runs the query with the given parameters and returns the
	// matching records in order. Malformed query text fails with a
	// *SyntaxError whose message is usable in a repair prompt.
	Execute(ctx context.Context, query string, params map[string]any) ([]graph.Record, error)
}

// SyntaxError reports that the graph store rejected the query text itself.
type SyntaxError struct {
	Code    string
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// IsSyntaxError reports whether err is a query syntax rejection.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}
