package capture

import (
	"context"
	"sync"
)

// Delivery is a frame handed across goroutines. The buffer behind
// Frame.Data stays with the consumer until Release is called, and the
// producer does not ask the driver for another frame before then.
type Delivery struct {
	Frame Frame

	once     sync.Once
	released chan struct{}
}

// Release returns the frame's buffer. Calling it more than once is safe.
func (d *Delivery) Release() {
	d.once.Do(func() { close(d.released) })
}

// Pipe runs r in a new goroutine and delivers frames on the returned
// channel. The channel is closed when the run ends; its result is then
// available on the error channel, which has capacity one.
//
// Consumers must Release every delivery. A consumer that stops reading must
// cancel ctx so the producer can finish.
func (r *Runner) Pipe(ctx context.Context) (<-chan *Delivery, <-chan error) {
	out := make(chan *Delivery)
	result := make(chan error, 1)

	go func() {
		defer close(result)
		defer close(out)

		result <- r.Run(ctx, func(f Frame) error {
			d := &Delivery{Frame: f, released: make(chan struct{})}
			select {
			case out <- d:
			case <-ctx.Done():
				return ErrStop
			}
			select {
			case <-d.released:
				return nil
			case <-ctx.Done():
				// The consumer may still hold Data; wait for it so the
				// buffer is not re-queued under it.
				<-d.released
				return ErrStop
			}
		})
	}()

	return out, result
}
