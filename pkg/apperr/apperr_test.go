package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("borrow: %w", New(KindNoCopiesAvailable, "no copies of %q left", "Dune"))

	assert.ErrorIs(t, err, ErrNoCopiesAvailable)
	assert.NotErrorIs(t, err, ErrAlreadyBorrowed)
	assert.Equal(t, KindNoCopiesAvailable, KindOf(err))
}

func TestErrorsIsMatchesEntity(t *testing.T) {
	err := NotFound("Book", "42")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, &Error{Kind: KindNotFound, Entity: "Book"})
	assert.NotErrorIs(t, err, &Error{Kind: KindNotFound, Entity: "User"})
	assert.Equal(t, `Book "42" not found`, err.Error())
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable(cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(ErrConflict))
	assert.Equal(t, "store unavailable: connection refused", err.Error())
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindPermissionDenied, http.StatusForbidden},
		{KindNoCopiesAvailable, http.StatusConflict},
		{KindBorrowLimitReached, http.StatusConflict},
		{KindUserInactive, http.StatusUnprocessableEntity},
		{KindStoreUnavailable, http.StatusServiceUnavailable},
		{KindInvariantViolation, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.kind))
		})
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	internal := Wrap(KindInvariantViolation, errors.New("copies_available=4 copies_total=3"), "release refused")

	assert.NotContains(t, PublicMessage(internal), "copies_available")
	assert.Equal(t, "user is suspended", PublicMessage(New(KindUserInactive, "user is suspended")))
}
