package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratodrive/internal/domain"
	"stratodrive/internal/service"
)

func boolPtr(b bool) *bool { return &b }

func TestTransferRequestPolicyFlags(t *testing.T) {
	cases := []struct {
		name      string
		overwrite *bool
		skip      *bool
		want      domain.ConflictPolicy
	}{
		{"default", nil, nil, domain.PolicyRename},
		{"explicit false", boolPtr(false), boolPtr(false), domain.PolicyRename},
		{"overwrite", boolPtr(true), nil, domain.PolicyOverwrite},
		{"skip", nil, boolPtr(true), domain.PolicySkip},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := transferRequest{Overwrite: c.overwrite, SkipIfExist: c.skip}
			got, err := req.toDomain()
			require.NoError(t, err)
			assert.Equal(t, c.want, got.Policy)
		})
	}
}

func TestTransferRequestConflictingFlags(t *testing.T) {
	req := transferRequest{Overwrite: boolPtr(true), SkipIfExist: boolPtr(true)}
	_, err := req.toDomain()
	assert.ErrorIs(t, err, service.ErrConflictingPolicy)
}

func TestWriteTransferErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{service.ErrInvalidRequest, 400},
		{service.ErrConflictingPolicy, 400},
		{service.ErrCyclicMove, 400},
		{service.ErrNotFound, 404},
		{service.ErrAccessDenied, 404},
		{service.ErrNameTaken, 409},
		{service.ErrNameResolutionExhausted, 409},
		{domain.ErrQuotaExceeded, 507},
		{&domain.QuotaError{Kind: domain.QuotaStorage, Requested: 10, Available: 5}, 507},
		{domain.ErrOwnerExpired, 403},
		{assert.AnError, 500},
	}
	for _, c := range cases {
		t.Run(c.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeTransferError(rec, c.err)
			assert.Equal(t, c.code, rec.Code)
		})
	}
}
