package notify

import (
	"context"
	"errors"
)

// Fanout publishes to every sink. A user without a live websocket is not
// an error; other sink failures are joined so the caller can log them.
type Fanout []Notifier

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Publish(ctx, ev); err != nil && !errors.Is(err, ErrNoSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
