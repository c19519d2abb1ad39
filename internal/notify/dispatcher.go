package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Observer counts notification attempts
type Observer interface {
	ObserveNotification(err error)
}

// Dispatcher sends notifications in the background so the caller never
// waits on, or sees errors from, the notifier.
type Dispatcher struct {
	notifier domain.Notifier
	timeout  time.Duration
	observer Observer
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher; each send gets its own timeout
func NewDispatcher(notifier domain.Notifier, timeout time.Duration, observer Observer) *Dispatcher {
	if notifier == nil {
		notifier = Nop{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, observer: observer}
}

// Dispatch sends text asynchronously
func (d *Dispatcher) Dispatch(text string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("notifier panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.notifier.Notify(ctx, text)
		if d.observer != nil {
			d.observer.ObserveNotification(err)
		}
		if err != nil {
			log.Warn().Err(err).Msg("notification failed")
		}
	}()
}

// Wait blocks until in-flight notifications finish or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
