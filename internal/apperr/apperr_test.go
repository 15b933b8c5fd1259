package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := Conflict("Subdomain already taken")
	wrapped := fmt.Errorf("provision: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		Validation("bad"):                     http.StatusBadRequest,
		Conflict("taken"):                     http.StatusConflict,
		NotFound("missing"):                   http.StatusNotFound,
		Upstream("idp down", nil):             http.StatusBadGateway,
		IsolationViolation("no tenant bound"): http.StatusInternalServerError,
		errors.New("boom"):                    http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestPublicMessageHidesIsolationViolation(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(IsolationViolation("products: create without tenant")))
	assert.Equal(t, "internal error", PublicMessage(errors.New("pq: connection refused")))
	assert.Equal(t, "Subdomain already taken", PublicMessage(Conflict("Subdomain already taken")))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Upstream("Authentication Error: timeout", cause)
	assert.ErrorIs(t, err, cause)
}
