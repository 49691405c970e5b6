package rules

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/temitayocharles/healthcare-naija/logger"
)

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine) error

// WithLogger installs a structured logger. The default is the phuslu-style
// logger; use logger.NewNullLogger in tests.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("nil logger")
		}
		e.logger = l
		return nil
	}
}

// WithAuditSink installs a decision sink. Without one, decisions are only
// logged.
func WithAuditSink(s AuditSink) EngineOption {
	return func(e *Engine) error {
		e.sink = s
		return nil
	}
}

// WithTraceIDFunc installs a custom correlation ID generator.
func WithTraceIDFunc(f TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		if f == nil {
			return fmt.Errorf("nil trace ID func")
		}
		e.traceIDFunc = f
		return nil
	}
}

// WithAuditBuffer sizes the fire-and-forget audit queue.
func WithAuditBuffer(n int) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("audit buffer must be positive")
		}
		e.auditBuf = n
		return nil
	}
}

// WithResolveDepth overrides the dependency chain bound. Lowering it below
// the built-in bound is allowed; raising it is capped there.
func WithResolveDepth(n int) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("resolve depth must be positive")
		}
		if n > maxDependencyDepth {
			n = maxDependencyDepth
		}
		e.maxResolveDepth = n
		return nil
	}
}

// WithMatchCache enables a ristretto-backed memoization cache for path
// matching. Safe because the rule table is immutable after load.
func WithMatchCache(numCounters, maxCost int64) EngineOption {
	return func(e *Engine) error {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: numCounters,
			MaxCost:     maxCost,
			BufferItems: 64,
		})
		if err != nil {
			return fmt.Errorf("match cache: %w", err)
		}
		e.matchCache = cache
		return nil
	}
}
