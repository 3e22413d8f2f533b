package usecase

import "context"

// SetDispatch replaces the background dispatcher so tests can run
// merge and extraction tasks inline.
func (uc *UseCases) SetDispatch(fn func(ctx context.Context, handler func(ctx context.Context) error)) {
	uc.dispatch = fn
}
