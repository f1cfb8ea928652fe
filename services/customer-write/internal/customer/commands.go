package customer

// Command is the closed set of customer commands.
type Command interface {
	AggregateID() string
	isCustomerCommand()
}

type RegisterCustomer struct {
	CustomerID  string `json:"customerId,omitempty"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type UpdateCustomer struct {
	CustomerID  string  `json:"-"`
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
}

type ChangeEmail struct {
	CustomerID string `json:"-"`
	NewEmail   string `json:"newEmail"`
}

type VerifyEmail struct {
	CustomerID string `json:"-"`
}

type VerifyPhone struct {
	CustomerID string `json:"-"`
}

type AddAddress struct {
	CustomerID  string      `json:"-"`
	AddressID   string      `json:"addressId,omitempty"`
	AddressType AddressType `json:"addressType"`
	AddressLines
	IsDefault bool `json:"isDefault,omitempty"`
}

type UpdateAddress struct {
	CustomerID string `json:"-"`
	AddressID  string `json:"-"`
	AddressLines
	IsDefault bool `json:"isDefault,omitempty"`
}

type RemoveAddress struct {
	CustomerID string `json:"-"`
	AddressID  string `json:"-"`
}

type UpdatePreferences struct {
	CustomerID string `json:"-"`
	Preferences
}

type DeactivateCustomer struct {
	CustomerID string `json:"-"`
	Reason     string `json:"reason,omitempty"`
}

type ReactivateCustomer struct {
	CustomerID string `json:"-"`
}

type DeleteCustomer struct {
	CustomerID string `json:"-"`
	Reason     string `json:"reason,omitempty"`
}

func (c RegisterCustomer) AggregateID() string   { return c.CustomerID }
func (c UpdateCustomer) AggregateID() string     { return c.CustomerID }
func (c ChangeEmail) AggregateID() string        { return c.CustomerID }
func (c VerifyEmail) AggregateID() string        { return c.CustomerID }
func (c VerifyPhone) AggregateID() string        { return c.CustomerID }
func (c AddAddress) AggregateID() string         { return c.CustomerID }
func (c UpdateAddress) AggregateID() string      { return c.CustomerID }
func (c RemoveAddress) AggregateID() string      { return c.CustomerID }
func (c UpdatePreferences) AggregateID() string  { return c.CustomerID }
func (c DeactivateCustomer) AggregateID() string { return c.CustomerID }
func (c ReactivateCustomer) AggregateID() string { return c.CustomerID }
func (c DeleteCustomer) AggregateID() string     { return c.CustomerID }

func (RegisterCustomer) isCustomerCommand()   {}
func (UpdateCustomer) isCustomerCommand()     {}
func (ChangeEmail) isCustomerCommand()        {}
func (VerifyEmail) isCustomerCommand()        {}
func (VerifyPhone) isCustomerCommand()        {}
func (AddAddress) isCustomerCommand()         {}
func (UpdateAddress) isCustomerCommand()      {}
func (RemoveAddress) isCustomerCommand()      {}
func (UpdatePreferences) isCustomerCommand()  {}
func (DeactivateCustomer) isCustomerCommand() {}
func (ReactivateCustomer) isCustomerCommand() {}
func (DeleteCustomer) isCustomerCommand()     {}
