package domain

// Type tags the kind of principal a credential was issued to.
type Type string

const (
	// TypeUser is an internal staff account.
	TypeUser Type = "user"
	// TypeCustomer is an end customer account.
	TypeCustomer Type = "customer"
)

// Valid reports whether t is a known principal type.
func (t Type) Valid() bool {
	return t == TypeUser || t == TypeCustomer
}

// User is an internal staff principal. RoleID is nil when no role is assigned.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	RoleID       *string
}

// Customer is an end-customer principal.
type Customer struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
}

// Principal is the subset of identity data embedded in issued credentials.
type Principal struct {
	ID       string
	Username string
	Type     Type
	RoleID   *string
}

// Principal returns the credential subject for u.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Username: u.Username, Type: TypeUser, RoleID: u.RoleID}
}

// Principal returns the credential subject for c. The username falls back to the email
// for customers registered without one.
func (c *Customer) Principal() Principal {
	name := c.Username
	if name == "" {
		name = c.Email
	}
	return Principal{ID: c.ID, Username: name, Type: TypeCustomer}
}
