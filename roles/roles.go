// Package roles defines the access roles used by the marketplace and the
// precedence rules for selecting a user's primary role.
package roles

// Role is an access-level tag determining dashboard routing and permissions.
type Role string

const (
	Patient    Role = "patient"
	Doctor     Role = "doctor"
	Clinic     Role = "clinic"
	Driver     Role = "driver"
	Admin      Role = "admin"
	SuperAdmin Role = "super_admin"
	Moderator  Role = "moderator"
)

// Default is the role provisioned for users with no role assignments.
const Default = Patient

// precedence ranks roles for primary-role selection. Lower is higher priority.
// Storage-returned order is not meaningful, so priority is made explicit here.
var precedence = map[Role]int{
	SuperAdmin: 0,
	Admin:      1,
	Moderator:  2,
	Doctor:     3,
	Clinic:     4,
	Driver:     5,
	Patient:    6,
}

// Valid reports whether r is a known role tag.
func (r Role) Valid() bool {
	_, ok := precedence[r]

	return ok
}

func (r Role) String() string {
	return string(r)
}

// Primary returns the highest-precedence role in list. Unknown tags are
// ignored. An empty or all-unknown list yields the Default role.
func Primary(list []Role) Role {
	primary := Default
	best := precedence[primary]
	found := false
	for _, r := range list {
		rank, known := precedence[r]
		if !known {
			continue
		}
		if !found || rank < best {
			primary, best, found = r, rank, true
		}
	}

	return primary
}
