package domain

import "time"

// User is the slice of an account this service owns: the verified flag.
// Every other account field belongs to other subsystems.
type User struct {
	ID        string
	Verified  bool
	UpdatedAt time.Time
}
