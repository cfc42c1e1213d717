package security

import (
	"testing"

	"nandu/api/internal/models"
)

func TestCanAct(t *testing.T) {
	cases := []struct {
		name      string
		subjectID string
		ownerID   string
		role      models.UserRole
		want      bool
	}{
		{"owner", "u1", "u1", models.UserRoleUser, true},
		{"other user", "u1", "u2", models.UserRoleUser, false},
		{"admin on foreign resource", "u1", "u2", models.UserRoleAdmin, true},
		{"admin on own resource", "u1", "u1", models.UserRoleAdmin, true},
		{"anonymous", "", "u1", models.UserRoleUser, false},
		{"anonymous admin role", "", "u1", models.UserRoleAdmin, false},
	}
	for _, tc := range cases {
		if got := CanAct(tc.subjectID, tc.ownerID, tc.role); got != tc.want {
			t.Errorf("%s: CanAct(%q, %q, %q) = %v, want %v", tc.name, tc.subjectID, tc.ownerID, tc.role, got, tc.want)
		}
	}
}
