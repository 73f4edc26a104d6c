package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("extracts kind from direct error", func(t *testing.T) {
		err := New(NotFound, "permit %s not found", "PERMIT-001")
		assert.Equal(t, NotFound, KindOf(err))
		assert.Equal(t, "permit PERMIT-001 not found", err.Error())
	})

	t.Run("extracts kind through wrapping", func(t *testing.T) {
		inner := New(Conflict, "seq moved")
		outer := fmt.Errorf("commit failed: %w", inner)
		assert.Equal(t, Conflict, KindOf(outer))
	})

	t.Run("returns empty kind for plain errors", func(t *testing.T) {
		assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CollaboratorUnavailable, cause, "signature service failed")

	assert.True(t, IsKind(err, CollaboratorUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIs(t *testing.T) {
	err := New(AlreadyPaid, "fees already paid")

	t.Run("matches on kind alone", func(t *testing.T) {
		assert.True(t, errors.Is(err, &Error{Kind: AlreadyPaid}))
	})

	t.Run("does not match a different kind", func(t *testing.T) {
		assert.False(t, errors.Is(err, &Error{Kind: NotFound}))
	})
}

func TestWithDetails(t *testing.T) {
	base := New(CannotClose, "3 requirements outstanding")
	err := base.WithDetails("missing as_built", "signature pending", "violation: NFPA 25")

	assert.Equal(t, []string{"missing as_built", "signature pending", "violation: NFPA 25"}, DetailsOf(err))
	assert.Nil(t, base.Details, "WithDetails must not mutate the original")

	wrapped := fmt.Errorf("close failed: %w", err)
	assert.Equal(t, 3, len(DetailsOf(wrapped)))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(New(NotFound, "missing")))
	assert.False(t, IsNotFound(New(Conflict, "raced")))
	assert.False(t, IsNotFound(nil))
}
