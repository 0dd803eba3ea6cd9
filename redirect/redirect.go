// Package redirect maps a primary role to its default landing location.
package redirect

import (
	"strings"

	"github.com/caremarket/session/roles"
)

// entryPrefix is the authentication-entry area of the app.
const entryPrefix = "/auth"

// landing is the fixed role-to-path table.
var landing = map[roles.Role]string{
	roles.Patient:    "/dashboard/patient",
	roles.Doctor:     "/dashboard/doctor",
	roles.Clinic:     "/dashboard/clinic",
	roles.Driver:     "/dashboard/driver",
	roles.Admin:      "/dashboard/admin",
	roles.SuperAdmin: "/dashboard/admin",
	roles.Moderator:  "/dashboard/moderator",
}

// NextLocation returns the default landing path for the primary role when
// current is the root path or inside the authentication-entry area. It
// returns ok=false otherwise, preserving the user's place in the app once
// they are past onboarding. An unknown primary role lands on the patient path.
func NextLocation(primary roles.Role, current string) (target string, ok bool) {
	if current != "/" && current != entryPrefix && !strings.HasPrefix(current, entryPrefix+"/") {
		return "", false
	}

	target, known := landing[primary]
	if !known {
		target = landing[roles.Patient]
	}

	return target, true
}
