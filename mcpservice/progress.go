package mcpservice

import "context"

// ProgressReporter forwards progress for the request whose context carries
// it. The engine installs one when the client sent a progress token.
type ProgressReporter interface {
	Report(ctx context.Context, progress, total float64) error
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(ctx context.Context, progress, total float64) error

func (f ProgressFunc) Report(ctx context.Context, progress, total float64) error {
	return f(ctx, progress, total)
}

type progressKey struct{}

// WithProgressReporter attaches pr to ctx. A nil pr leaves ctx unchanged.
func WithProgressReporter(ctx context.Context, pr ProgressReporter) context.Context {
	if pr == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, pr)
}

func ProgressFrom(ctx context.Context) (ProgressReporter, bool) {
	pr, ok := ctx.Value(progressKey{}).(ProgressReporter)
	return pr, ok && pr != nil
}

// ReportProgress reports through the reporter on ctx, if any. Without one it
// does nothing.
func ReportProgress(ctx context.Context, progress, total float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pr, ok := ProgressFrom(ctx)
	if !ok {
		return nil
	}
	return pr.Report(ctx, progress, total)
}
