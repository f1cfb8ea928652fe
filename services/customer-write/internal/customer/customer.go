// Package customer is the event-sourced customer aggregate.
package customer

import (
	"context"
	"fmt"
	"net/mail"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/storefront/libs/es"
)

const AggregateType = "Customer"

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusDeleted  Status = "DELETED"
)

const (
	RuleInvalidData           = "invalid-customer-data"
	RuleNotActive             = "customer-not-active"
	RuleDeleted               = "customer-deleted"
	RuleAddressNotFound       = "address-not-found"
	RuleDefaultAddressRemoval = "default-address-removal"
)

type Customer struct {
	es.Root `json:"-"`

	Email                    string      `json:"email"`
	FirstName                string      `json:"firstName"`
	LastName                 string      `json:"lastName"`
	PhoneNumber              string      `json:"phoneNumber,omitempty"`
	Status                   Status      `json:"status"`
	EmailVerified            bool        `json:"emailVerified"`
	PhoneVerified            bool        `json:"phoneVerified"`
	BillingAddress           *Address    `json:"billingAddress,omitempty"`
	ShippingAddresses        []Address   `json:"shippingAddresses"`
	DefaultShippingAddressID string      `json:"defaultShippingAddressId,omitempty"`
	Preferences              Preferences `json:"preferences"`
	CreatedAt                time.Time   `json:"createdAt"`
	UpdatedAt                time.Time   `json:"updatedAt"`
}

// Register starts a new customer stream. The caller checks that the email
// is not taken.
func Register(ctx context.Context, id string, cmd RegisterCustomer) (*Customer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, es.Invalid(RuleInvalidData, "customer id is required")
	}
	if err := checkEmail(cmd.Email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.FirstName) == "" {
		return nil, es.Invalid(RuleInvalidData, "first name is required")
	}
	if strings.TrimSpace(cmd.LastName) == "" {
		return nil, es.Invalid(RuleInvalidData, "last name is required")
	}
	c := &Customer{Root: es.NewRoot(id, AggregateType)}
	evt := Registered{
		Email:       strings.TrimSpace(cmd.Email),
		FirstName:   strings.TrimSpace(cmd.FirstName),
		LastName:    strings.TrimSpace(cmd.LastName),
		PhoneNumber: strings.TrimSpace(cmd.PhoneNumber),
	}
	if err := c.raise(ctx, evt, es.UniqueClaim{Field: "email", Value: evt.Email}); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Customer) Update(ctx context.Context, cmd UpdateCustomer) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if cmd.FirstName != nil && strings.TrimSpace(*cmd.FirstName) == "" {
		return es.Invalid(RuleInvalidData, "first name cannot be blank")
	}
	if cmd.LastName != nil && strings.TrimSpace(*cmd.LastName) == "" {
		return es.Invalid(RuleInvalidData, "last name cannot be blank")
	}
	var evt Updated
	changed := false
	diff := func(dst **string, cur string, next *string) {
		if next != nil && *next != cur {
			val := *next
			*dst = &val
			changed = true
		}
	}
	diff(&evt.FirstName, c.FirstName, cmd.FirstName)
	diff(&evt.LastName, c.LastName, cmd.LastName)
	diff(&evt.PhoneNumber, c.PhoneNumber, cmd.PhoneNumber)
	if !changed {
		return nil
	}
	return c.raise(ctx, evt)
}

// ChangeEmail moves the customer to a new address that must be verified
// again. The new address is claimed in the unique index.
func (c *Customer) ChangeEmail(ctx context.Context, cmd ChangeEmail) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if err := checkEmail(cmd.NewEmail); err != nil {
		return err
	}
	next := strings.TrimSpace(cmd.NewEmail)
	if next == c.Email {
		return nil
	}
	return c.raise(ctx, EmailChanged{OldEmail: c.Email, NewEmail: next}, es.UniqueClaim{Field: "email", Value: next})
}

func (c *Customer) VerifyEmail(ctx context.Context, _ VerifyEmail) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if c.EmailVerified {
		return nil
	}
	return c.raise(ctx, EmailVerified{Email: c.Email})
}

// VerifyPhone is a no-op when there is no number or it is already verified.
func (c *Customer) VerifyPhone(ctx context.Context, _ VerifyPhone) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if c.PhoneVerified || c.PhoneNumber == "" {
		return nil
	}
	return c.raise(ctx, PhoneVerified{PhoneNumber: c.PhoneNumber})
}

// AddAddress replaces the billing address or appends a shipping address.
// The first shipping address becomes the default.
func (c *Customer) AddAddress(ctx context.Context, cmd AddAddress) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	switch cmd.AddressType {
	case AddressBilling, AddressShipping:
	default:
		return es.Invalid(RuleInvalidData, "unknown address type %q", cmd.AddressType)
	}
	if err := cmd.AddressLines.validate(); err != nil {
		return err
	}
	id := strings.TrimSpace(cmd.AddressID)
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := c.address(id); ok {
		return es.Invalid(RuleInvalidData, "address %s already exists", id)
	}
	return c.raise(ctx, AddressAdded{
		AddressID:    id,
		AddressType:  cmd.AddressType,
		AddressLines: cmd.AddressLines,
		IsDefault:    cmd.IsDefault && cmd.AddressType == AddressShipping,
	})
}

func (c *Customer) UpdateAddress(ctx context.Context, cmd UpdateAddress) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	cur, ok := c.address(cmd.AddressID)
	if !ok {
		return es.Invalid(RuleAddressNotFound, "address %s not found", cmd.AddressID)
	}
	if err := cmd.AddressLines.validate(); err != nil {
		return err
	}
	makeDefault := cmd.IsDefault && cur.Type == AddressShipping
	if cur.AddressLines == cmd.AddressLines && (!makeDefault || c.DefaultShippingAddressID == cur.ID) {
		return nil
	}
	return c.raise(ctx, AddressUpdated{AddressID: cur.ID, AddressLines: cmd.AddressLines, IsDefault: makeDefault})
}

// RemoveAddress rejects the default shipping address; another address has
// to become the default first.
func (c *Customer) RemoveAddress(ctx context.Context, cmd RemoveAddress) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if _, ok := c.address(cmd.AddressID); !ok {
		return es.Invalid(RuleAddressNotFound, "address %s not found", cmd.AddressID)
	}
	if cmd.AddressID == c.DefaultShippingAddressID {
		return es.Invalid(RuleDefaultAddressRemoval, "address %s is the default shipping address", cmd.AddressID)
	}
	return c.raise(ctx, AddressRemoved{AddressID: cmd.AddressID})
}

func (c *Customer) UpdatePreferences(ctx context.Context, cmd UpdatePreferences) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	prefs := cmd.Preferences.clone()
	if reflect.DeepEqual(c.Preferences.clone(), prefs) {
		return nil
	}
	return c.raise(ctx, PreferencesUpdated{Preferences: prefs})
}

func (c *Customer) Deactivate(ctx context.Context, cmd DeactivateCustomer) error {
	if err := c.requireNotDeleted(); err != nil {
		return err
	}
	if c.Status == StatusInactive {
		return nil
	}
	return c.raise(ctx, Deactivated{Reason: cmd.Reason})
}

func (c *Customer) Reactivate(ctx context.Context, _ ReactivateCustomer) error {
	if err := c.requireNotDeleted(); err != nil {
		return err
	}
	if c.Status == StatusActive {
		return nil
	}
	return c.raise(ctx, Reactivated{})
}

func (c *Customer) Delete(ctx context.Context, cmd DeleteCustomer) error {
	if err := c.requireNotDeleted(); err != nil {
		return err
	}
	return c.raise(ctx, Deleted{Reason: cmd.Reason})
}

func (c *Customer) Clone() *Customer {
	out := *c
	out.Root = c.CloneRoot()
	if c.BillingAddress != nil {
		billing := *c.BillingAddress
		out.BillingAddress = &billing
	}
	out.ShippingAddresses = slices.Clone(c.ShippingAddresses)
	out.Preferences = c.Preferences.clone()
	return &out
}

func (c *Customer) UniqueValues() []es.UniqueClaim {
	if c.Email == "" {
		return nil
	}
	return []es.UniqueClaim{{Field: "email", Value: c.Email}}
}

func Replay(id string, history []es.Envelope) (*Customer, error) {
	c := &Customer{Root: es.NewRoot(id, AggregateType)}
	for _, e := range history {
		if err := c.Replayed(e); err != nil {
			return nil, err
		}
		evt, err := Decode(e)
		if err != nil {
			return nil, err
		}
		if err := c.apply(evt, e.Timestamp); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Customer) raise(ctx context.Context, evt Event, claims ...es.UniqueClaim) error {
	env, err := c.NewEvent(ctx, evt.EventType(), evt, claims...)
	if err != nil {
		return err
	}
	if err := c.apply(evt, env.Timestamp); err != nil {
		return err
	}
	c.Record(env)
	return nil
}

func (c *Customer) apply(evt Event, at time.Time) error {
	switch e := evt.(type) {
	case Registered:
		c.Email = e.Email
		c.FirstName = e.FirstName
		c.LastName = e.LastName
		c.PhoneNumber = e.PhoneNumber
		c.Status = StatusActive
		c.CreatedAt = at
	case Updated:
		if e.FirstName != nil {
			c.FirstName = *e.FirstName
		}
		if e.LastName != nil {
			c.LastName = *e.LastName
		}
		if e.PhoneNumber != nil {
			c.PhoneNumber = *e.PhoneNumber
			c.PhoneVerified = false
		}
	case EmailChanged:
		c.Email = e.NewEmail
		c.EmailVerified = false
	case EmailVerified:
		c.EmailVerified = true
	case PhoneVerified:
		c.PhoneVerified = true
	case AddressAdded:
		addr := Address{ID: e.AddressID, Type: e.AddressType, AddressLines: e.AddressLines}
		if e.AddressType == AddressBilling {
			c.BillingAddress = &addr
			break
		}
		c.ShippingAddresses = append(c.ShippingAddresses, addr)
		if e.IsDefault || c.DefaultShippingAddressID == "" {
			c.DefaultShippingAddressID = addr.ID
		}
	case AddressUpdated:
		if c.BillingAddress != nil && c.BillingAddress.ID == e.AddressID {
			c.BillingAddress.AddressLines = e.AddressLines
			break
		}
		for i := range c.ShippingAddresses {
			if c.ShippingAddresses[i].ID == e.AddressID {
				c.ShippingAddresses[i].AddressLines = e.AddressLines
			}
		}
		if e.IsDefault {
			c.DefaultShippingAddressID = e.AddressID
		}
	case AddressRemoved:
		if c.BillingAddress != nil && c.BillingAddress.ID == e.AddressID {
			c.BillingAddress = nil
			break
		}
		c.ShippingAddresses = slices.DeleteFunc(c.ShippingAddresses, func(a Address) bool { return a.ID == e.AddressID })
	case PreferencesUpdated:
		c.Preferences = e.Preferences.clone()
	case Deactivated:
		c.Status = StatusInactive
	case Reactivated:
		c.Status = StatusActive
	case Deleted:
		c.Status = StatusDeleted
	default:
		return fmt.Errorf("%w: %T", es.ErrUnknownEventType, evt)
	}
	c.UpdatedAt = at
	return nil
}

func (c *Customer) address(id string) (Address, bool) {
	if c.BillingAddress != nil && c.BillingAddress.ID == id {
		return *c.BillingAddress, true
	}
	for _, a := range c.ShippingAddresses {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

func (c *Customer) requireNotDeleted() error {
	if c.Status == StatusDeleted {
		return es.Invalid(RuleDeleted, "customer %s is deleted", c.ID())
	}
	return nil
}

func (c *Customer) requireActive() error {
	if err := c.requireNotDeleted(); err != nil {
		return err
	}
	if c.Status != StatusActive {
		return es.Invalid(RuleNotActive, "customer %s is %s", c.ID(), c.Status)
	}
	return nil
}

func checkEmail(raw string) error {
	v := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return es.Invalid(RuleInvalidData, "invalid email %q", raw)
	}
	return nil
}
