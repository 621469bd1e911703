package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/addrnorm/internal/enrich"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "busy limiter", err: ErrTooManyBatches, wantCode: "UPL001"},
		{name: "unknown batch", err: fmt.Errorf("report: %w", ErrBatchNotFound), wantCode: "UPL002"},
		{name: "body limit", err: errors.New("http: request body too large"), wantCode: "FILE001"},
		{name: "csv parse", err: errors.New("invalid csv: record on line 3: wrong number of fields"), wantCode: "FILE002"},
		{name: "cancelled", err: context.Canceled, wantCode: "UPL003"},
		{name: "deadline", err: fmt.Errorf("normalize batch: %w", context.DeadlineExceeded), wantCode: "UPL004"},
		{
			name:     "enrichment wins over wrapped cause",
			err:      &enrich.UnavailableError{Attempts: 2, Err: context.DeadlineExceeded},
			wantCode: "ENR001",
		},
		{name: "case insensitive", err: errors.New("EMPTY FILE"), wantCode: "FILE005"},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, MapError(tt.err).Code)
		})
	}
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t,
		"System is busy processing other uploads (Code: UPL001). Please wait a moment and try again",
		FormatUserError(ErrTooManyBatches))
	assert.Empty(t, FormatUserError(nil))
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.True(t, IsUserFacing(errors.New("unsupported file format \".pdf\"")))
	assert.False(t, IsUserFacing(errors.New("random internal error xyz")))
}

func TestNewUserError(t *testing.T) {
	assert.Nil(t, NewUserError(nil))

	tech := fmt.Errorf("lookup: %w", ErrBatchNotFound)
	ue := NewUserError(tech)
	require.NotNil(t, ue)
	assert.Equal(t, "Batch not found", ue.Error())
	assert.ErrorIs(t, ue, ErrBatchNotFound)
}
