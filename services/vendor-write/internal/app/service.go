package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/services/vendor-write/internal/vendor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("vendor-write")

type Repository = es.Repository[*vendor.Vendor]

func NewRepository(store es.EventStore, cfg es.RepositoryConfig) (*Repository, error) {
	return es.NewRepository[*vendor.Vendor](store, vendor.Replay, cfg)
}

// Result identifies the stream state after a command.
type Result struct {
	ID      string        `json:"id"`
	Version int           `json:"version"`
	Status  vendor.Status `json:"status"`
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Handle runs one command against its aggregate and saves the outcome.
func (s *Service) Handle(ctx context.Context, cmd vendor.Command) (res Result, err error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("vendor.%T", cmd))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("vendor.id", res.ID), attribute.Int("vendor.version", res.Version))
		span.End()
	}()

	switch c := cmd.(type) {
	case vendor.RegisterVendor:
		return s.register(ctx, c)
	case vendor.UpdateVendor:
		return s.mutate(ctx, c.VendorID, func(v *vendor.Vendor) error { return v.Update(ctx, c) })
	case vendor.VerifyVendor:
		return s.mutate(ctx, c.VendorID, func(v *vendor.Vendor) error { return v.Verify(ctx, c) })
	case vendor.ChangeVendorStatus:
		return s.mutate(ctx, c.VendorID, func(v *vendor.Vendor) error { return v.ChangeStatus(ctx, c) })
	case vendor.AssignCategory:
		return s.mutate(ctx, c.VendorID, func(v *vendor.Vendor) error { return v.AssignCategory(ctx, c) })
	case vendor.RemoveCategory:
		return s.mutate(ctx, c.VendorID, func(v *vendor.Vendor) error { return v.RemoveCategory(ctx, c) })
	case vendor.UpdateBankDetails:
		return s.mutate(ctx, c.VendorID, func(v *vendor.Vendor) error { return v.UpdateBankDetails(ctx, c) })
	case vendor.DeleteVendor:
		return s.mutate(ctx, c.VendorID, func(v *vendor.Vendor) error { return v.Delete(ctx, c) })
	default:
		return Result{}, fmt.Errorf("unsupported vendor command %T", cmd)
	}
}

// Get returns the current state of a vendor.
func (s *Service) Get(ctx context.Context, id string) (*vendor.Vendor, error) {
	return s.repo.Load(ctx, id)
}

func (s *Service) register(ctx context.Context, cmd vendor.RegisterVendor) (Result, error) {
	id := strings.TrimSpace(cmd.VendorID)
	if id == "" {
		id = uuid.NewString()
	}
	taken, err := s.repo.ExistsByUniqueField(ctx, "email", cmd.Email)
	if err != nil {
		return Result{}, err
	}
	if taken {
		return Result{}, es.DuplicateValue("email", cmd.Email)
	}
	v, err := vendor.Register(ctx, id, cmd)
	if err != nil {
		return Result{}, err
	}
	return s.save(ctx, v)
}

func (s *Service) mutate(ctx context.Context, id string, apply func(*vendor.Vendor) error) (Result, error) {
	v, err := s.repo.Load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := apply(v); err != nil {
		return Result{}, err
	}
	return s.save(ctx, v)
}

func (s *Service) save(ctx context.Context, v *vendor.Vendor) (Result, error) {
	v, err := s.repo.Save(ctx, v)
	if err != nil {
		return Result{}, err
	}
	return Result{ID: v.ID(), Version: v.Version(), Status: v.Status}, nil
}
