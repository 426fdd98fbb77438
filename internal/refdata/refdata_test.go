package refdata

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "medicines.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Import([]RefMedicine{
		{Name: "Metformin 500mg", Substance: "metformin", Strength: "500mg", Form: "tablet"},
		{Name: "Metformin 850mg", Substance: "metformin", Strength: "850mg", Form: "tablet"},
		{Name: "Lisinopril 10mg", Substance: "lisinopril", Strength: "10mg", Form: "tablet"},
	}))
	return c
}

func TestCatalog_SearchByName(t *testing.T) {
	c := newTestCatalog(t)

	rows, err := c.Search("metformin", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Metformin 500mg", rows[0].Name)
}

func TestCatalog_SearchIsCaseInsensitive(t *testing.T) {
	c := newTestCatalog(t)

	rows, err := c.Search("LISINO", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "lisinopril", rows[0].Substance)
}

func TestCatalog_SearchEmptyQuery(t *testing.T) {
	c := newTestCatalog(t)

	rows, err := c.Search("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCatalog_SearchHonorsLimit(t *testing.T) {
	c := newTestCatalog(t)

	rows, err := c.Search("m", 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCatalog_Count(t *testing.T) {
	c := newTestCatalog(t)

	n, err := c.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
