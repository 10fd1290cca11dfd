package userdata

import "strings"

// Storage keys owned by the profile store.
const (
	KeyCurrentUser      = "currentUser"
	KeyUsers            = "users"
	employeesPrefix     = "employees:"
	employeesUserPrefix = "employees:user:"
	profileImagePrefix  = "profileImage_"
)

// EmployeesKey returns the tenant employee list key, falling back to a
// per-user namespace when no company is known.
func EmployeesKey(companyID, email string) string {
	if id := strings.TrimSpace(companyID); id != "" {
		return employeesPrefix + id
	}
	return employeesUserPrefix + email
}

// ProfileImageKey returns the key holding a user's avatar data URL.
func ProfileImageKey(email string) string {
	return profileImagePrefix + strings.ToLower(strings.TrimSpace(email))
}
