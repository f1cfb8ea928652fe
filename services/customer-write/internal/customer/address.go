package customer

import (
	"slices"
	"strings"

	"github.com/md-rashed-zaman/storefront/libs/es"
)

type AddressType string

const (
	AddressBilling  AddressType = "BILLING"
	AddressShipping AddressType = "SHIPPING"
)

// AddressLines is the postal part of an address.
type AddressLines struct {
	Street          string `json:"street"`
	BuildingNumber  string `json:"buildingNumber,omitempty"`
	ApartmentNumber string `json:"apartmentNumber,omitempty"`
	City            string `json:"city"`
	State           string `json:"state,omitempty"`
	PostalCode      string `json:"postalCode"`
	Country         string `json:"country"`
}

func (l AddressLines) validate() error {
	missing := []string{}
	for name, v := range map[string]string{
		"street":     l.Street,
		"city":       l.City,
		"postalCode": l.PostalCode,
		"country":    l.Country,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return es.Invalid(RuleInvalidData, "address is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type Address struct {
	ID   string      `json:"id"`
	Type AddressType `json:"addressType"`
	AddressLines
}

type Preferences struct {
	MarketingConsent     bool     `json:"marketingConsent"`
	NewsletterSubscribed bool     `json:"newsletterSubscribed"`
	PreferredLanguage    string   `json:"preferredLanguage,omitempty"`
	PreferredCurrency    string   `json:"preferredCurrency,omitempty"`
	FavoriteCategories   []string `json:"favoriteCategories,omitempty"`
}

// clone copies p with an empty category list normalized to nil, so equal
// preferences compare equal however they were submitted.
func (p Preferences) clone() Preferences {
	if len(p.FavoriteCategories) == 0 {
		p.FavoriteCategories = nil
	} else {
		p.FavoriteCategories = slices.Clone(p.FavoriteCategories)
	}
	return p
}
