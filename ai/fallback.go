package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FallbackCompleter tries a prioritized list of completers and returns the
// first successful reply.
type FallbackCompleter struct {
	completers []Completer
	logger     *slog.Logger
}

var _ Completer = (*FallbackCompleter)(nil)

// NewFallbackCompleter creates a chain over completers in priority order.
func NewFallbackCompleter(completers ...Completer) (*FallbackCompleter, error) {
	chain := make([]Completer, 0, len(completers))
	for _, c := range completers {
		if c != nil {
			chain = append(chain, c)
		}
	}
	if len(chain) == 0 {
		return nil, ErrNoCompleters
	}
	return &FallbackCompleter{
		completers: chain,
		logger:     slog.Default().With("component", "fallback-completer"),
	}, nil
}

// Len returns the number of completers in the chain.
func (f *FallbackCompleter) Len() int {
	return len(f.completers)
}

// Complete returns the reply of the first completer that succeeds.
// Context cancellation stops the chain immediately.
func (f *FallbackCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	var errs []error
	for i, c := range f.completers {
		reply, err := c.Complete(ctx, prompt)
		if err == nil {
			if i > 0 {
				f.logger.Debug("completion succeeded on fallback", "position", i, "completer", describe(c))
			}
			return reply, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		f.logger.Warn("completer failed, trying next", "position", i, "completer", describe(c), "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", describe(c), err))
	}
	return "", errors.Join(append([]error{ErrAllCompletersFailed}, errs...)...)
}

func describe(c Completer) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c)
}
