package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/services/vendor-write/internal/vendor"
)

type recorder struct {
	mu     sync.Mutex
	events []es.Envelope
}

func (r *recorder) Publish(_ context.Context, events []es.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func newService(t *testing.T, store es.EventStore, pub es.Publisher) *Service {
	t.Helper()
	repo, err := NewRepository(store, es.RepositoryConfig{CacheSize: 32, Publisher: pub})
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	return NewService(repo)
}

func registerCmd(email string) vendor.RegisterVendor {
	return vendor.RegisterVendor{Name: "Acme", BusinessName: "Acme GmbH", Email: email}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := es.NewMemoryStore()
	svc := newService(t, store, nil)

	res, err := svc.Handle(ctx, registerCmd("a@b.com"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.Version != 1 || res.Status != vendor.StatusPending || res.ID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	history, _ := store.Load(ctx, res.ID)
	if len(history) != 1 || history[0].EventType != vendor.TypeRegistered {
		t.Fatalf("expected one registered event, got %+v", history)
	}

	_, err = svc.Handle(ctx, registerCmd("A@B.com "))
	v, ok := es.AsValidation(err)
	if !ok || v.Rule != "duplicate-email" {
		t.Fatalf("expected duplicate-email, got %v", err)
	}
	if store.Appends() != 1 {
		t.Fatalf("duplicate registration appended events: %d appends", store.Appends())
	}

	// A fresh service has an empty cache and must consult the store index.
	_, err = newService(t, store, nil).Handle(ctx, registerCmd("a@b.com"))
	if v, ok := es.AsValidation(err); !ok || v.Rule != "duplicate-email" {
		t.Fatalf("expected duplicate-email from store index, got %v", err)
	}
}

func TestCommandsPublishCommittedEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	svc := newService(t, es.NewMemoryStore(), pub)

	res, err := svc.Handle(ctx, registerCmd("a@b.com"))
	if err != nil {
		t.Fatal(err)
	}
	steps := []vendor.Command{
		vendor.VerifyVendor{VendorID: res.ID},
		vendor.VerifyVendor{VendorID: res.ID},
		vendor.AssignCategory{VendorID: res.ID, CategoryID: "shoes"},
		vendor.UpdateBankDetails{VendorID: res.ID, BankAccountNumber: "DE00", BankName: "Bank"},
		vendor.RemoveCategory{VendorID: res.ID, CategoryID: "shoes"},
		vendor.ChangeVendorStatus{VendorID: res.ID, Status: vendor.StatusSuspended},
		vendor.DeleteVendor{VendorID: res.ID},
	}
	for _, cmd := range steps {
		if res, err = svc.Handle(ctx, cmd); err != nil {
			t.Fatalf("%T: %v", cmd, err)
		}
	}
	if res.Version != 7 || res.Status != vendor.StatusDeleted {
		t.Fatalf("expected deleted vendor at version 7, got %+v", res)
	}
	if len(pub.events) != 7 {
		t.Fatalf("expected 7 published events, got %d", len(pub.events))
	}
	for i, e := range pub.events {
		if e.Version != i+1 {
			t.Fatalf("published out of order: %d at %d", e.Version, i)
		}
		if _, ok := vendor.Topic(e.EventType); !ok {
			t.Fatalf("no topic for %s", e.EventType)
		}
	}
}

func TestUnknownVendor(t *testing.T) {
	svc := newService(t, es.NewMemoryStore(), nil)
	_, err := svc.Handle(context.Background(), vendor.VerifyVendor{VendorID: "missing"})
	if !errors.Is(err, es.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentWritersConflict(t *testing.T) {
	ctx := context.Background()
	store := es.NewMemoryStore()
	first := newService(t, store, nil)
	second := newService(t, store, nil)

	res, err := first.Handle(ctx, registerCmd("a@b.com"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Handle(ctx, vendor.VerifyVendor{VendorID: res.ID}); err != nil {
		t.Fatal(err)
	}
	// second loads the verified stream, then first moves ahead.
	if _, err := second.Get(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Handle(ctx, vendor.AssignCategory{VendorID: res.ID, CategoryID: "a"}); err != nil {
		t.Fatal(err)
	}

	_, err = second.Handle(ctx, vendor.AssignCategory{VendorID: res.ID, CategoryID: "b"})
	if !errors.Is(err, es.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	// The stale cache entry is gone, so a retry replays and succeeds.
	out, err := second.Handle(ctx, vendor.AssignCategory{VendorID: res.ID, CategoryID: "b"})
	if err != nil || out.Version != 4 {
		t.Fatalf("expected retry at version 4, got %+v %v", out, err)
	}
}
