package admin

import (
	"github.com/google/uuid"

	"github.com/liwaywai/lending-api/internal/domain/policy"
)

// OverrideRequest for POST /admin/applications/{id}/override
type OverrideRequest struct {
	Decision string `json:"decision" validate:"required,override_decision"`
	Note     string `json:"note" validate:"required,min=10,max=500"`
}

// PublishPolicyRequest for PUT /admin/policy. The new version becomes active.
type PublishPolicyRequest struct {
	Version string        `json:"version" validate:"required,max=50"`
	Params  policy.Params `json:"params"`
}

// AuditLogFilter for GET /admin/audit-logs
type AuditLogFilter struct {
	Action string
	Page   int
	Limit  int
}

func (f *AuditLogFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}
}

// Actor identifies the admin behind a mutation
type Actor struct {
	AdminID   uuid.UUID
	IPAddress string
}
