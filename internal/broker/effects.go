package broker

import "context"

// effects collects outbound calls produced while the dispatcher lock is held. They run
// after the lock is released, in the order they were added.
type effects []func(ctx context.Context)

func (fx *effects) add(f func(ctx context.Context)) {
	*fx = append(*fx, f)
}

func (fx effects) run(ctx context.Context) {
	for _, f := range fx {
		f(ctx)
	}
}
