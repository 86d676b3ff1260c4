package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindConflict, http.StatusConflict},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindServiceUnavailable, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := &Error{Kind: tc.kind, Message: "x"}
		assert.Equal(t, tc.want, e.HTTPStatus(), string(tc.kind))
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := NewInternal("wrapped", cause)
	assert.ErrorIs(t, e, cause)
}

func TestWrapPassesThroughTaxonomyErrors(t *testing.T) {
	original := NewNotFound("missing", nil)
	wrapped := Wrap(original)
	require.Equal(t, original, wrapped)
}

func TestWrapClassifiesPlainErrors(t *testing.T) {
	wrapped := Wrap(errors.New("plain"))
	require.NotNil(t, wrapped)
	assert.Equal(t, KindInternal, wrapped.Kind)
}

func TestAsFindsWrappedTaxonomyError(t *testing.T) {
	inner := NewValidation("bad url", nil)
	outer := fmt.Errorf("handler failed: %w", inner)
	found, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, KindValidation, found.Kind)
}
