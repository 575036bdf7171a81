package domain

import "time"

// UserRole distinguishes riders, drivers and back-office operators.
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleDriver UserRole = "driver"
	UserRoleAdmin  UserRole = "admin"
)

// User is a party known to the user directory.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Role      UserRole
	CreatedAt time.Time
}

// IsDriver reports whether the user can be allocated to bookings.
func (u *User) IsDriver() bool {
	return u.Role == UserRoleDriver
}
