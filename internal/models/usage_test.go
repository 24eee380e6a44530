package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDay(t *testing.T) {
	assert.Equal(t, "2026-08-25", Day(time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC)))

	// Local times convert to the UTC date.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2026-08-26", Day(time.Date(2026, 8, 25, 23, 0, 0, 0, est)))
}

func TestNextMidnightUTC(t *testing.T) {
	next := NextMidnightUTC(time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), next)

	// Month rollover.
	next = NextMidnightUTC(time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), next)

	// Midnight itself rolls to the following day.
	next = NextMidnightUTC(time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), next)
}

func TestQuotaRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     QuotaRequest
		wantErr bool
	}{
		{
			name: "valid check",
			req:  QuotaRequest{Action: ActionCheck, Fingerprint: "fpA"},
		},
		{
			name: "valid record",
			req:  QuotaRequest{Action: ActionRecord, Fingerprint: "fpA", Success: true},
		},
		{
			name:    "missing action",
			req:     QuotaRequest{Fingerprint: "fpA"},
			wantErr: true,
		},
		{
			name:    "unknown action",
			req:     QuotaRequest{Action: "reset", Fingerprint: "fpA"},
			wantErr: true,
		},
		{
			name:    "missing fingerprint",
			req:     QuotaRequest{Action: ActionCheck},
			wantErr: true,
		},
		{
			name:    "blank fingerprint",
			req:     QuotaRequest{Action: ActionCheck, Fingerprint: "   "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListAttemptsRequest_Normalize(t *testing.T) {
	req := ListAttemptsRequest{}
	req.Normalize()
	assert.Equal(t, 100, req.Limit)

	req = ListAttemptsRequest{Limit: -5}
	req.Normalize()
	assert.Equal(t, 100, req.Limit)

	req = ListAttemptsRequest{Limit: 50}
	req.Normalize()
	assert.Equal(t, 50, req.Limit)

	req = ListAttemptsRequest{Limit: 5000}
	req.Normalize()
	assert.Equal(t, 1000, req.Limit)
}

func TestNewQuotaExceededResponse(t *testing.T) {
	resp := NewQuotaExceededResponse(5)
	assert.False(t, resp.CanGenerate)
	assert.Equal(t, 5, resp.GenerationsUsed)
	assert.Equal(t, 0, resp.GenerationsRemaining)
	assert.NotEmpty(t, resp.Error)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("something broke", ErrorCodeInternalError)
	assert.Equal(t, "error", resp.Error)
	assert.Equal(t, "something broke", resp.Message)
	assert.Equal(t, ErrorCodeInternalError, resp.Code)
	assert.False(t, resp.Timestamp.IsZero())
}
