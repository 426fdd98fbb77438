package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

func TestMedicine_CreateAndGet(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateMedicine("u1", Medicine{
		Name:  "Lisinopril",
		Dose:  10,
		Unit:  "mg",
		Stock: 30,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "u1", created.OwnerID)

	got, err := s.GetMedicine("u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lisinopril", got.Name)
	assert.Equal(t, 30.0, got.Stock)
}

func TestMedicine_CreateRequiresName(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateMedicine("u1", Medicine{Name: "   "})
	require.Error(t, err)
}

func TestMedicine_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetMedicine("u1", "nope")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestMedicine_OwnerIsolation(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateMedicine("u1", Medicine{Name: "Metformin"})
	require.NoError(t, err)

	_, err = s.GetMedicine("u2", created.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestMedicine_Update(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateMedicine("u1", Medicine{Name: "Metformin", Stock: 10})
	require.NoError(t, err)

	created.Stock = 25
	created.Description = "with meals"
	updated, err := s.UpdateMedicine("u1", *created)
	require.NoError(t, err)
	assert.Equal(t, 25.0, updated.Stock)

	got, err := s.GetMedicine("u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "with meals", got.Description)
}

func TestMedicine_UpdateMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateMedicine("u1", Medicine{ID: "nope", Name: "Ghost"})
	assert.True(t, apperr.IsNotFound(err))
}

func TestMedicine_Delete(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateMedicine("u1", Medicine{Name: "Metformin"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMedicine("u1", created.ID))
	_, err = s.GetMedicine("u1", created.ID)
	assert.True(t, apperr.IsNotFound(err))

	err = s.DeleteMedicine("u1", created.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestMedicine_ListSortedByName(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"zinc", "Aspirin", "metformin"} {
		_, err := s.CreateMedicine("u1", Medicine{Name: name})
		require.NoError(t, err)
	}

	meds, err := s.GetAllMedicines("u1")
	require.NoError(t, err)
	require.Len(t, meds, 3)
	assert.Equal(t, "Aspirin", meds[0].Name)
	assert.Equal(t, "metformin", meds[1].Name)
	assert.Equal(t, "zinc", meds[2].Name)
}

func TestMedicine_ListPaginates(t *testing.T) {
	s := newTestStore(t)
	s.scanPageSize = 3

	for i := 0; i < 10; i++ {
		_, err := s.CreateMedicine("u1", Medicine{Name: fmt.Sprintf("med-%02d", i)})
		require.NoError(t, err)
	}

	meds, err := s.GetAllMedicines("u1")
	require.NoError(t, err)
	require.Len(t, meds, 10)

	// No duplicates across page boundaries.
	seen := map[string]bool{}
	for _, m := range meds {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}

func TestMedicine_AddStock(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateMedicine("u1", Medicine{Name: "Metformin", Stock: 5})
	require.NoError(t, err)

	updated, err := s.AddStock("u1", created.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 35.0, updated.Stock)

	_, err = s.AddStock("u1", "nope", 30)
	assert.True(t, apperr.IsNotFound(err))
}
