package app

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/storefront/libs/db"
	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/services/customer-write/internal/customer"
)

func newService(t *testing.T, store es.EventStore) *Service {
	t.Helper()
	repo, err := NewRepository(store, es.RepositoryConfig{CacheSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	return NewService(repo)
}

func sqliteStore(t *testing.T) es.EventStore {
	t.Helper()
	sqlDB, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	store := es.NewSQLiteStore(sqlDB)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return store
}

func register(t *testing.T, svc *Service, email string) Result {
	t.Helper()
	res, err := svc.Handle(context.Background(), customer.RegisterCustomer{Email: email, FirstName: "Jan", LastName: "Nowak"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

func TestEmailUniqueness(t *testing.T) {
	for name, store := range map[string]es.EventStore{
		"memory": es.NewMemoryStore(),
		"sqlite": sqliteStore(t),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := newService(t, store)
			first := register(t, svc, "jan@example.com")
			second := register(t, svc, "anna@example.com")

			_, err := svc.Handle(ctx, customer.RegisterCustomer{Email: "JAN@example.com", FirstName: "J", LastName: "N"})
			if v, ok := es.AsValidation(err); !ok || v.Rule != "duplicate-email" {
				t.Fatalf("expected duplicate-email on register, got %v", err)
			}
			_, err = svc.Handle(ctx, customer.ChangeEmail{CustomerID: second.ID, NewEmail: "jan@example.com"})
			if v, ok := es.AsValidation(err); !ok || v.Rule != "duplicate-email" {
				t.Fatalf("expected duplicate-email on change, got %v", err)
			}

			res, err := svc.Handle(ctx, customer.ChangeEmail{CustomerID: first.ID, NewEmail: "Jan@Example.com"})
			if err != nil || res.Version != 2 {
				t.Fatalf("case-only change of own email: %+v %v", res, err)
			}
			// A fresh service sees the claim through the store index alone.
			_, err = newService(t, store).Handle(ctx, customer.RegisterCustomer{Email: "anna@example.com", FirstName: "A", LastName: "B"})
			if v, ok := es.AsValidation(err); !ok || v.Rule != "duplicate-email" {
				t.Fatalf("expected duplicate-email from store, got %v", err)
			}
		})
	}
}

func TestAddressCommands(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, es.NewMemoryStore())
	res := register(t, svc, "jan@example.com")
	lines := customer.AddressLines{Street: "Długa", City: "Gdańsk", PostalCode: "80-001", Country: "PL"}

	if _, err := svc.Handle(ctx, customer.AddAddress{CustomerID: res.ID, AddressID: "home", AddressType: customer.AddressShipping, AddressLines: lines}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Handle(ctx, customer.RemoveAddress{CustomerID: res.ID, AddressID: "home"})
	if v, ok := es.AsValidation(err); !ok || v.Rule != customer.RuleDefaultAddressRemoval {
		t.Fatalf("expected default-address-removal, got %v", err)
	}

	c, err := svc.Get(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Version() != 2 || len(c.ShippingAddresses) != 1 {
		t.Fatalf("unexpected state after rejected removal: version %d, %d addresses", c.Version(), len(c.ShippingAddresses))
	}
}

func TestDeletedCustomerRejectsCommands(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, es.NewMemoryStore())
	res := register(t, svc, "jan@example.com")
	if _, err := svc.Handle(ctx, customer.DeleteCustomer{CustomerID: res.ID}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Handle(ctx, customer.ReactivateCustomer{CustomerID: res.ID})
	if v, ok := es.AsValidation(err); !ok || v.Rule != customer.RuleDeleted {
		t.Fatalf("expected customer-deleted, got %v", err)
	}
	if _, err := svc.Handle(ctx, customer.VerifyEmail{CustomerID: "nobody"}); !errors.Is(err, es.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
