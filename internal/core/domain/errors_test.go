package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrCursorConflict", ErrCursorConflict},
		{"ErrUnknownImporter", ErrUnknownImporter},
		{"ErrImporterDisabled", ErrImporterDisabled},
		{"ErrIdentityImmutable", ErrIdentityImmutable},
		{"ErrRateLimited", ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestTransportError_Error(t *testing.T) {
	err := &TransportError{Status: 503, URL: "https://example.test/api/3/bills/2023", Retryable: true}
	assert.Equal(t, "transport error: status 503 (https://example.test/api/3/bills/2023)", err.Error())

	wrapped := &TransportError{Err: context.DeadlineExceeded, Retryable: true}
	assert.Equal(t, "transport error: context deadline exceeded", wrapped.Error())
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, IsRetryableStatus(429))
	assert.True(t, IsRetryableStatus(500))
	assert.True(t, IsRetryableStatus(503))
	assert.False(t, IsRetryableStatus(400))
	assert.False(t, IsRetryableStatus(404))
	assert.False(t, IsRetryableStatus(200))
}

func TestParseError_Error(t *testing.T) {
	unknown := &ParseError{Kind: UnknownResponseType, ResponseType: "vote"}
	assert.Equal(t, `unknown response type "vote"`, unknown.Error())

	missing := &ParseError{Kind: UnknownResponseType}
	assert.Contains(t, missing.Error(), "discriminator missing")

	malformed := &ParseError{Kind: MalformedPayload, ResponseType: "bill", Path: "sponsor.member.memberId", Reason: "required"}
	assert.Equal(t, `malformed bill payload at "sponsor.member.memberId": required`, malformed.Error())
}

func TestIsUnknownResponseType(t *testing.T) {
	err := fmt.Errorf("page 2: %w", &ParseError{Kind: UnknownResponseType, ResponseType: "x"})
	assert.True(t, IsUnknownResponseType(err))
	assert.False(t, IsUnknownResponseType(&ParseError{Kind: MalformedPayload}))
	assert.False(t, IsUnknownResponseType(errors.New("other")))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassNone},
		{"cursor conflict", fmt.Errorf("run bills: %w", ErrCursorConflict), ErrorClassCursorConflict},
		{"configuration", NewConfigurationError("bill-search", "unresolved placeholder {session}"), ErrorClassConfiguration},
		{"unknown importer", fmt.Errorf("%w: nope", ErrUnknownImporter), ErrorClassConfiguration},
		{"retryable transport", &TransportError{Status: 503, Retryable: true}, ErrorClassTransportTransient},
		{"fatal transport", &TransportError{Status: 404}, ErrorClassTransportFatal},
		{"cancelled", fmt.Errorf("between pages: %w", context.Canceled), ErrorClassCancelled},
		{"deadline", context.DeadlineExceeded, ErrorClassTransportTransient},
		{"storage", &StorageError{Op: "update", Err: errors.New("disk full")}, ErrorClassStorage},
		{"other", errors.New("boom"), ErrorClassInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestErrorClass_Transient(t *testing.T) {
	assert.True(t, ErrorClassTransportTransient.Transient())
	assert.True(t, ErrorClassCancelled.Transient())
	assert.False(t, ErrorClassConfiguration.Transient())
	assert.False(t, ErrorClassTransportFatal.Transient())
}

func TestRunSummary_Fail(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := RunSummary{ImporterID: "bills", Started: start}
	s.Fail(&TransportError{Status: 502, Retryable: true}, start.Add(time.Minute))

	assert.Equal(t, RunStateFailed, s.State)
	assert.Equal(t, ErrorClassTransportTransient, s.ErrorClass)
	assert.Contains(t, s.TerminalError, "status 502")
	assert.Equal(t, time.Minute, s.Duration())
	assert.False(t, s.Succeeded())
}
