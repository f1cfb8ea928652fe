package es

import "context"

// Publisher hands committed events to the broker. Implementations route
// their own delivery failures; a returned error is only logged.
type Publisher interface {
	Publish(ctx context.Context, events []Envelope) error
}

type PublisherFunc func(ctx context.Context, events []Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, events []Envelope) error {
	return f(ctx, events)
}
