package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

var errNoBrokers = errors.New("kafka brokers not configured")

// ReadyCheck passes when some broker answers and can name the cluster
// controller; a broker cut off from the controller cannot take writes.
func ReadyCheck(brokers string) func(context.Context) error {
	addrs := SplitBrokers(brokers)
	dialer := &kafka.Dialer{Timeout: 2 * time.Second}
	return func(ctx context.Context) error {
		if len(addrs) == 0 {
			return errNoBrokers
		}
		var errs []error
		for _, addr := range addrs {
			if err := probe(ctx, dialer, addr); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
				continue
			}
			return nil
		}
		return errors.Join(errs...)
	}
}

func probe(ctx context.Context, dialer *kafka.Dialer, addr string) error {
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	_, err = conn.Controller()
	return err
}
