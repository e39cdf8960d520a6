package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planward/planward/internal/shared/domain"
)

func TestNewBaseEntity(t *testing.T) {
	before := time.Now().UTC()
	entity := domain.NewBaseEntity()
	after := time.Now().UTC()

	assert.NotEqual(t, uuid.Nil, entity.ID())
	require.False(t, entity.CreatedAt().Before(before))
	require.False(t, entity.CreatedAt().After(after))
	assert.Equal(t, entity.CreatedAt(), entity.UpdatedAt())
}

func TestRehydrateBaseEntity(t *testing.T) {
	id := uuid.New()
	createdAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	updatedAt := createdAt.Add(time.Hour)

	entity := domain.RehydrateBaseEntity(id, createdAt, updatedAt)

	assert.Equal(t, id, entity.ID())
	assert.Equal(t, createdAt, entity.CreatedAt())
	assert.Equal(t, updatedAt, entity.UpdatedAt())
}

func TestBaseEntity_Touch(t *testing.T) {
	entity := domain.NewBaseEntity()
	originalUpdatedAt := entity.UpdatedAt()
	originalCreatedAt := entity.CreatedAt()

	time.Sleep(time.Millisecond)
	entity.Touch()

	assert.True(t, entity.UpdatedAt().After(originalUpdatedAt))
	assert.Equal(t, originalCreatedAt, entity.CreatedAt())
}
