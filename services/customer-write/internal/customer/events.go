package customer

import (
	"fmt"
	"sort"

	"github.com/md-rashed-zaman/storefront/libs/es"
)

const (
	TypeRegistered         = "CustomerRegisteredEvent"
	TypeUpdated            = "CustomerUpdatedEvent"
	TypeEmailChanged       = "CustomerEmailChangedEvent"
	TypeEmailVerified      = "CustomerEmailVerifiedEvent"
	TypePhoneVerified      = "CustomerPhoneVerifiedEvent"
	TypeAddressAdded       = "CustomerAddressAddedEvent"
	TypeAddressUpdated     = "CustomerAddressUpdatedEvent"
	TypeAddressRemoved     = "CustomerAddressRemovedEvent"
	TypePreferencesUpdated = "CustomerPreferencesUpdatedEvent"
	TypeDeactivated        = "CustomerDeactivatedEvent"
	TypeReactivated        = "CustomerReactivatedEvent"
	TypeDeleted            = "CustomerDeletedEvent"
)

// Event is the closed set of customer events.
type Event interface {
	EventType() string
	isCustomerEvent()
}

type Registered struct {
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// Updated carries only the changed profile fields. A new phone number is
// always unverified.
type Updated struct {
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
}

type EmailChanged struct {
	OldEmail string `json:"oldEmail"`
	NewEmail string `json:"newEmail"`
}

type EmailVerified struct {
	Email string `json:"email"`
}

type PhoneVerified struct {
	PhoneNumber string `json:"phoneNumber"`
}

type AddressAdded struct {
	AddressID   string      `json:"addressId"`
	AddressType AddressType `json:"addressType"`
	AddressLines
	IsDefault bool `json:"isDefault"`
}

type AddressUpdated struct {
	AddressID string `json:"addressId"`
	AddressLines
	IsDefault bool `json:"isDefault"`
}

type AddressRemoved struct {
	AddressID string `json:"addressId"`
}

type PreferencesUpdated struct {
	Preferences
}

type Deactivated struct {
	Reason string `json:"reason,omitempty"`
}

type Reactivated struct{}

type Deleted struct {
	Reason string `json:"reason,omitempty"`
}

func (Registered) EventType() string         { return TypeRegistered }
func (Updated) EventType() string            { return TypeUpdated }
func (EmailChanged) EventType() string       { return TypeEmailChanged }
func (EmailVerified) EventType() string      { return TypeEmailVerified }
func (PhoneVerified) EventType() string      { return TypePhoneVerified }
func (AddressAdded) EventType() string       { return TypeAddressAdded }
func (AddressUpdated) EventType() string     { return TypeAddressUpdated }
func (AddressRemoved) EventType() string     { return TypeAddressRemoved }
func (PreferencesUpdated) EventType() string { return TypePreferencesUpdated }
func (Deactivated) EventType() string        { return TypeDeactivated }
func (Reactivated) EventType() string        { return TypeReactivated }
func (Deleted) EventType() string            { return TypeDeleted }

func (Registered) isCustomerEvent()         {}
func (Updated) isCustomerEvent()            {}
func (EmailChanged) isCustomerEvent()       {}
func (EmailVerified) isCustomerEvent()      {}
func (PhoneVerified) isCustomerEvent()      {}
func (AddressAdded) isCustomerEvent()       {}
func (AddressUpdated) isCustomerEvent()     {}
func (AddressRemoved) isCustomerEvent()     {}
func (PreferencesUpdated) isCustomerEvent() {}
func (Deactivated) isCustomerEvent()        {}
func (Reactivated) isCustomerEvent()        {}
func (Deleted) isCustomerEvent()            {}

var decoders = map[string]func(es.Envelope) (Event, error){
	TypeRegistered:         decodeAs[Registered],
	TypeUpdated:            decodeAs[Updated],
	TypeEmailChanged:       decodeAs[EmailChanged],
	TypeEmailVerified:      decodeAs[EmailVerified],
	TypePhoneVerified:      decodeAs[PhoneVerified],
	TypeAddressAdded:       decodeAs[AddressAdded],
	TypeAddressUpdated:     decodeAs[AddressUpdated],
	TypeAddressRemoved:     decodeAs[AddressRemoved],
	TypePreferencesUpdated: decodeAs[PreferencesUpdated],
	TypeDeactivated:        decodeAs[Deactivated],
	TypeReactivated:        decodeAs[Reactivated],
	TypeDeleted:            decodeAs[Deleted],
}

// Decode maps a stored envelope to its event. Unknown types are an error.
func Decode(e es.Envelope) (Event, error) {
	decode, ok := decoders[e.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", es.ErrUnknownEventType, e.EventType)
	}
	return decode(e)
}

func decodeAs[T Event](e es.Envelope) (Event, error) {
	var evt T
	if err := es.DecodePayload(e, &evt); err != nil {
		return nil, err
	}
	return evt, nil
}

var topics = map[string]string{
	TypeRegistered:         "customer.registered.event",
	TypeUpdated:            "customer.updated.event",
	TypeEmailChanged:       "customer.email-changed.event",
	TypeEmailVerified:      "customer.email-verified.event",
	TypePhoneVerified:      "customer.phone-verified.event",
	TypeAddressAdded:       "customer.address-added.event",
	TypeAddressUpdated:     "customer.address-updated.event",
	TypeAddressRemoved:     "customer.address-removed.event",
	TypePreferencesUpdated: "customer.preferences-updated.event",
	TypeDeactivated:        "customer.deactivated.event",
	TypeReactivated:        "customer.reactivated.event",
	TypeDeleted:            "customer.deleted.event",
}

func Topic(eventType string) (string, bool) {
	t, ok := topics[eventType]
	return t, ok
}

func Topics() []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
