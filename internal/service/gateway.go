package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/port/cache"
)

// Call purposes. Each one is a logical call type with its own circuit and,
// where caching applies, its own TTL class.
const (
	PurposeClassification = "classification"
	PurposeAnalysis       = "analysis"
	PurposeQueryGen       = "query_generation"
	PurposeSyntaxFix      = "syntax_fix"
	PurposeOptimization   = "context_optimization"
	PurposeScoring        = "context_scoring"
	PurposePlanning       = "enrichment_planning"
	PurposeSynthesis      = "synthesis"
	PurposeVerification   = "verification"
)

// modelCaller is the narrow surface services use to reach the model.
// ModelGateway implements it; tests substitute fakes.
type modelCaller interface {
	Complete(ctx context.Context, purpose, prompt string, priority dispatch.Priority) (string, error)
}

// ModelGateway fronts the dispatcher with a read-through response cache.
// Only successful completions are ever cached; failures always propagate so
// that a transient error cannot be replayed for a cache TTL.
type ModelGateway struct {
	dispatcher *dispatch.Dispatcher
	cache      cache.Cache
	cfg        config.Cache
	log        *slog.Logger
	onHit      func(purpose string)
	onCall     func(purpose string, err error)
}

// NewModelGateway creates a ModelGateway. The cache may be nil, in which
// case every call goes straight to the dispatcher.
func NewModelGateway(d *dispatch.Dispatcher, c cache.Cache, cfg config.Cache, log *slog.Logger) *ModelGateway {
	if log == nil {
		log = slog.Default()
	}
	return &ModelGateway{dispatcher: d, cache: c, cfg: cfg, log: log}
}

// SetOnHit registers a callback invoked on every cache hit, keyed by purpose.
func (g *ModelGateway) SetOnHit(fn func(purpose string)) {
	g.onHit = fn
}

// SetOnCall registers a callback invoked after every dispatched call with
// its outcome. Cache hits do not trigger it.
func (g *ModelGateway) SetOnCall(fn func(purpose string, err error)) {
	g.onCall = fn
}

// Complete returns the cached response for this purpose+prompt pair when one
// exists, otherwise dispatches the call and caches the successful result.
func (g *ModelGateway) Complete(ctx context.Context, purpose, prompt string, priority dispatch.Priority) (string, error) {
	ttl := g.ttlFor(purpose)
	key := ResponseKey(purpose, prompt)

	if g.cache != nil && ttl > 0 {
		if cached, ok, err := g.cache.Get(ctx, key); err == nil && ok {
			g.log.Debug("cache hit", "purpose", purpose)
			if g.onHit != nil {
				g.onHit(purpose)
			}
			return string(cached), nil
		}
	}

	text, err := g.dispatcher.Submit(ctx, dispatch.Request{
		Purpose:  purpose,
		Prompt:   prompt,
		Priority: priority,
	})
	if g.onCall != nil {
		g.onCall(purpose, err)
	}
	if err != nil {
		return "", err
	}

	if g.cache != nil && ttl > 0 {
		if cerr := g.cache.Set(ctx, key, []byte(text), ttl); cerr != nil {
			g.log.Warn("response cache write failed", "purpose", purpose, "error", cerr)
		}
	}
	return text, nil
}

// ttlFor maps a call purpose to its cache TTL class. A zero TTL disables
// caching for the purpose entirely.
func (g *ModelGateway) ttlFor(purpose string) time.Duration {
	switch purpose {
	case PurposeVerification:
		return g.cfg.VerifyTTL
	case PurposeSyntaxFix:
		return g.cfg.SyntaxFixTTL
	case PurposeScoring, PurposePlanning, PurposeOptimization:
		// Scoring and planning depend on accumulated context, not just the
		// prompt text, so replaying them would skew the enrichment loop.
		return 0
	default:
		return g.cfg.DefaultTTL
	}
}

// ResponseKey derives the cache key for a purpose+prompt pair. Purpose is
// part of the digest so identical prompt text under different call types
// never collides.
func ResponseKey(purpose, prompt string) string {
	sum := sha256.Sum256([]byte(purpose + "\x00" + prompt))
	return "model:" + hex.EncodeToString(sum[:])
}
