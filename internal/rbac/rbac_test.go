package rbac

import (
	"testing"

	"github.com/company-marketplace/backend/internal/models"
	"github.com/google/uuid"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{models.RoleAdmin, PermModerateChange, true},
		{models.RoleAdmin, PermApplyChange, true},
		{models.RoleCompanyUser, PermSubmitChange, true},
		{models.RoleCompanyUser, PermModerateChange, false},
		{models.RoleCompanyUser, PermApplyChange, false},
		{"guest", PermViewChanges, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestCanActOnCompany(t *testing.T) {
	own := uuid.New()
	other := uuid.New()

	tests := []struct {
		name       string
		role       string
		own        *uuid.UUID
		company    uuid.UUID
		changeType models.ChangeType
		want       bool
	}{
		{"own company", models.RoleCompanyUser, &own, own, models.ChangeTypeCompanyInfo, true},
		{"foreign company", models.RoleCompanyUser, &own, other, models.ChangeTypeCompanyInfo, false},
		{"no company", models.RoleCompanyUser, nil, other, models.ChangeTypeBanner, false},
		{"access request", models.RoleCompanyUser, nil, other, models.ChangeTypeAccessRequest, true},
		{"admin", models.RoleAdmin, nil, other, models.ChangeTypeMedia, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanActOnCompany(tt.role, tt.own, tt.company, tt.changeType); got != tt.want {
				t.Errorf("CanActOnCompany = %v, want %v", got, tt.want)
			}
		})
	}
}
