package security

import "nandu/api/internal/models"

// CanAct is the single ownership predicate for the whole API: a subject may
// act on a resource it owns, and admins may act on anything. Both the
// self-or-admin account check and the post ownership check go through here so
// the two call sites cannot drift.
func CanAct(subjectID string, ownerID string, role models.UserRole) bool {
	if subjectID == "" {
		return false
	}
	return subjectID == ownerID || role == models.UserRoleAdmin
}
