package quota

import (
	"context"

	"genquota/internal/identity"
	"genquota/internal/models"
)

// ServiceInterface defines the quota enforcement contract. Extracted as an
// interface so HTTP handlers can be tested against a mock enforcer.
type ServiceInterface interface {
	// Check reports the caller's current quota state without mutating it.
	Check(ctx context.Context, id identity.Identity) (*models.QuotaStatusResponse, error)

	// Record logs a completed generation attempt and, when success is true,
	// consumes one unit of quota. The boundary is re-checked here; a stale
	// client-held count is never trusted.
	Record(ctx context.Context, id identity.Identity, success bool, errorDetail string) (*models.RecordResponse, error)
}
