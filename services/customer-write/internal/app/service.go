package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/services/customer-write/internal/customer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("customer-write")

type Repository = es.Repository[*customer.Customer]

func NewRepository(store es.EventStore, cfg es.RepositoryConfig) (*Repository, error) {
	return es.NewRepository[*customer.Customer](store, customer.Replay, cfg)
}

type Result struct {
	ID      string          `json:"id"`
	Version int             `json:"version"`
	Status  customer.Status `json:"status"`
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Handle(ctx context.Context, cmd customer.Command) (res Result, err error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("customer.%T", cmd))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("customer.id", res.ID), attribute.Int("customer.version", res.Version))
		span.End()
	}()

	switch c := cmd.(type) {
	case customer.RegisterCustomer:
		return s.register(ctx, c)
	case customer.UpdateCustomer:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.Update(ctx, c) })
	case customer.ChangeEmail:
		return s.changeEmail(ctx, c)
	case customer.VerifyEmail:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.VerifyEmail(ctx, c) })
	case customer.VerifyPhone:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.VerifyPhone(ctx, c) })
	case customer.AddAddress:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.AddAddress(ctx, c) })
	case customer.UpdateAddress:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.UpdateAddress(ctx, c) })
	case customer.RemoveAddress:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.RemoveAddress(ctx, c) })
	case customer.UpdatePreferences:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.UpdatePreferences(ctx, c) })
	case customer.DeactivateCustomer:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.Deactivate(ctx, c) })
	case customer.ReactivateCustomer:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.Reactivate(ctx, c) })
	case customer.DeleteCustomer:
		return s.mutate(ctx, c.CustomerID, func(a *customer.Customer) error { return a.Delete(ctx, c) })
	default:
		return Result{}, fmt.Errorf("unsupported customer command %T", cmd)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*customer.Customer, error) {
	return s.repo.Load(ctx, id)
}

func (s *Service) register(ctx context.Context, cmd customer.RegisterCustomer) (Result, error) {
	id := strings.TrimSpace(cmd.CustomerID)
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.requireFreeEmail(ctx, cmd.Email); err != nil {
		return Result{}, err
	}
	c, err := customer.Register(ctx, id, cmd)
	if err != nil {
		return Result{}, err
	}
	return s.save(ctx, c)
}

// changeEmail checks uniqueness unless the address only changes case.
func (s *Service) changeEmail(ctx context.Context, cmd customer.ChangeEmail) (Result, error) {
	return s.mutate(ctx, cmd.CustomerID, func(c *customer.Customer) error {
		if es.NormalizeValue(cmd.NewEmail) != es.NormalizeValue(c.Email) {
			if err := s.requireFreeEmail(ctx, cmd.NewEmail); err != nil {
				return err
			}
		}
		return c.ChangeEmail(ctx, cmd)
	})
}

func (s *Service) requireFreeEmail(ctx context.Context, email string) error {
	taken, err := s.repo.ExistsByUniqueField(ctx, "email", email)
	if err != nil {
		return err
	}
	if taken {
		return es.DuplicateValue("email", email)
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, id string, apply func(*customer.Customer) error) (Result, error) {
	c, err := s.repo.Load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := apply(c); err != nil {
		return Result{}, err
	}
	return s.save(ctx, c)
}

func (s *Service) save(ctx context.Context, c *customer.Customer) (Result, error) {
	c, err := s.repo.Save(ctx, c)
	if err != nil {
		return Result{}, err
	}
	return Result{ID: c.ID(), Version: c.Version(), Status: c.Status}, nil
}
