package publishers

import (
	"context"
	"errors"
	"fmt"
)

// Fanout delivers one saved-record event to every configured downstream sink.
// Sinks fail independently; one broken queue never blocks the others.
type Fanout struct {
	publishers []Publisher
}

// NewFanout builds a fanout over the given publishers, dropping nil entries.
func NewFanout(pubs []Publisher) *Fanout {
	cp := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p == nil {
			continue
		}
		cp = append(cp, p)
	}
	return &Fanout{publishers: cp}
}

// Publish offers the event to every sink and reports how many accepted it,
// joining the failures into one error.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil || len(f.publishers) == 0 {
		return 0, nil
	}

	var errs []error
	successful := 0
	for _, p := range f.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s publisher[%s]: %w", p.Type(), p.ID(), err))
		} else {
			successful++
		}
	}
	return successful, errors.Join(errs...)
}

// Size reports how many sinks are registered; the coordinator skips event
// construction entirely when it is zero.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}
