package domain

import "strconv"

// Role is an auth-service role.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
)

// User is the authenticated account returned by /auth/self.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Avatar    string `json:"avatar,omitempty"`
}

// IDString returns the user id in the string form billing and chat use.
func (u User) IDString() string {
	return strconv.FormatInt(u.ID, 10)
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
