package models

// UserID identifies a user. The ledger treats it as an opaque, comparable key.
type UserID string

// User is an external identity.
//
// Users are owned by a separate user service; the ledger only ever reads them and
// refers to them by ID.
type User struct {
	// ID is the unique identifier for the user.
	ID UserID

	// Name is the display name of the user.
	Name string
}

// String returns the display name, falling back to the ID.
func (u User) String() string {
	if u.Name != "" {
		return u.Name
	}
	return string(u.ID)
}
