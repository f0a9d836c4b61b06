package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestWrapNotFound(t *testing.T) {
	assert.NoError(t, WrapNotFound(nil))
	assert.ErrorIs(t, WrapNotFound(pgx.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, WrapNotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)), ErrNotFound)

	other := errors.New("connection refused")
	wrapped := WrapNotFound(other)
	assert.ErrorIs(t, wrapped, other)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, "db: connection refused", wrapped.Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(errors.New("boom")))
}
