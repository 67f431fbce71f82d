package custos

import "context"

type contextKey int

const (
	ctxKeyChecker contextKey = iota
)

// WithChecker returns a context carrying a checker. Request handlers can
// stash one per request so downstream code shares its memo.
func WithChecker(ctx context.Context, c *Checker) context.Context {
	return context.WithValue(ctx, ctxKeyChecker, c)
}

// CheckerFrom extracts a checker previously stored with WithChecker.
func CheckerFrom(ctx context.Context) (*Checker, bool) {
	c, ok := ctx.Value(ctxKeyChecker).(*Checker)
	return c, ok
}
