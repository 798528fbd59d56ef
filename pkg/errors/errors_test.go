package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:           {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:         {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:            {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:             {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:             {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeStateConflict:        {HTTPStatus: http.StatusConflict, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeInsufficientStock:    {HTTPStatus: http.StatusConflict, PublicMessage: "insufficient stock", DetailsAllowed: true},
		CodePaymentNotSuccessful: {HTTPStatus: http.StatusPaymentRequired, PublicMessage: "payment not successful yet", Retryable: true, DetailsAllowed: true},
		CodeInternal:             {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:           {HTTPStatus: http.StatusBadGateway, PublicMessage: "upstream dependency unavailable", Retryable: true, DetailsAllowed: true},
	}

	for code, want := range cases {
		got := MetadataFor(code)
		assert.Equal(t, want.HTTPStatus, got.HTTPStatus, "status for %s", code)
		assert.Equal(t, want.PublicMessage, got.PublicMessage, "public message for %s", code)
		assert.Equal(t, want.Retryable, got.Retryable, "retryable for %s", code)
		assert.Equal(t, want.DetailsAllowed, got.DetailsAllowed, "details allowed for %s", code)
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
	assert.True(t, meta.Retryable)
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing cart")
	require.Equal(t, CodeValidation, base.Code())
	require.Equal(t, "missing cart", base.Message())
	require.Nil(t, base.Details())

	base.WithDetails(map[string]any{"field": "items"})
	require.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, CodeConflict, wrapped.Code())
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	got := As(err)
	require.NotNil(t, got)
	assert.Equal(t, CodeForbidden, got.Code())
	assert.Nil(t, As(nil))
}

func TestIsCode(t *testing.T) {
	err := Wrap(CodeInsufficientStock, stdErrors.New("qty"), "stock check")
	assert.True(t, IsCode(err, CodeInsufficientStock))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
}
