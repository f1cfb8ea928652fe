package es_test

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/storefront/libs/es"
)

type account struct {
	es.Root
	Email   string
	Balance int
}

type accountOpened struct {
	Email string `json:"email"`
}

type deposited struct {
	Amount int `json:"amount"`
}

func openAccount(ctx context.Context, id string, email string) (*account, error) {
	a := &account{Root: es.NewRoot(id, "account")}
	env, err := a.NewEvent(ctx, "AccountOpened", accountOpened{Email: email}, es.UniqueClaim{Field: "email", Value: email})
	if err != nil {
		return nil, err
	}
	if err := a.apply(env); err != nil {
		return nil, err
	}
	a.Record(env)
	return a, nil
}

func (a *account) Deposit(ctx context.Context, amount int) error {
	if amount <= 0 {
		return es.Invalid("invalid-amount", "amount must be positive")
	}
	env, err := a.NewEvent(ctx, "Deposited", deposited{Amount: amount})
	if err != nil {
		return err
	}
	if err := a.apply(env); err != nil {
		return err
	}
	a.Record(env)
	return nil
}

func (a *account) apply(e es.Envelope) error {
	switch e.EventType {
	case "AccountOpened":
		var p accountOpened
		if err := es.DecodePayload(e, &p); err != nil {
			return err
		}
		a.Email = p.Email
	case "Deposited":
		var p deposited
		if err := es.DecodePayload(e, &p); err != nil {
			return err
		}
		a.Balance += p.Amount
	default:
		return fmt.Errorf("%w: %s", es.ErrUnknownEventType, e.EventType)
	}
	return nil
}

func (a *account) Clone() *account {
	c := *a
	c.Root = a.CloneRoot()
	return &c
}

func (a *account) UniqueValues() []es.UniqueClaim {
	return []es.UniqueClaim{{Field: "email", Value: a.Email}}
}

func replayAccount(id string, history []es.Envelope) (*account, error) {
	a := &account{Root: es.NewRoot(id, "account")}
	for _, e := range history {
		if err := a.Replayed(e); err != nil {
			return nil, err
		}
		if err := a.apply(e); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// countingStore wraps a store and counts Append calls.
type countingStore struct {
	es.EventStore
	appends int
}

func (s *countingStore) Append(ctx context.Context, id string, expected int, events []es.Envelope) (int, error) {
	s.appends++
	return s.EventStore.Append(ctx, id, expected, events)
}
