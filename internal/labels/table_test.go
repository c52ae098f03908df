package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]int
		expectErr bool
	}{
		{"valid", map[string]int{"A": 0, "B": 1, "C": 2}, false},
		{"single", map[string]int{"A": 0}, false},
		{"empty", map[string]int{}, true},
		{"nil", nil, true},
		{"duplicate index", map[string]int{"A": 0, "B": 0}, true},
		{"gap", map[string]int{"A": 0, "B": 2}, true},
		{"negative", map[string]int{"A": -1, "B": 0}, true},
		{"not zero based", map[string]int{"A": 1, "B": 2}, true},
		{"empty label", map[string]int{"": 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := New(tt.input)
			if tt.expectErr {
				require.ErrorIs(t, err, ErrInvalidTable)
				assert.Nil(t, table)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.input), table.Len())
		})
	}
}

func TestTableBijection(t *testing.T) {
	table, err := New(map[string]int{"A": 0, "B": 1, "C": 2, "D": 3})
	require.NoError(t, err)

	for i := 0; i < table.Len(); i++ {
		label, ok := table.LabelOf(i)
		require.True(t, ok)
		idx, ok := table.IndexOf(label)
		require.True(t, ok)
		assert.Equal(t, i, idx)
	}

	assert.Equal(t, []string{"A", "B", "C", "D"}, table.Labels())
}

func TestTableLookupMiss(t *testing.T) {
	table, err := New(map[string]int{"A": 0})
	require.NoError(t, err)

	_, ok := table.LabelOf(1)
	assert.False(t, ok)
	_, ok = table.LabelOf(-1)
	assert.False(t, ok)
	_, ok = table.IndexOf("Z")
	assert.False(t, ok)
}

func TestLabelsReturnsCopy(t *testing.T) {
	table, err := New(map[string]int{"A": 0, "B": 1})
	require.NoError(t, err)

	labels := table.Labels()
	labels[0] = "mutated"

	label, _ := table.LabelOf(0)
	assert.Equal(t, "A", label)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "valid.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"A": 0, "B": 1}`), 0o644))

		table, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, table.Len())
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"A": "zero"}`), 0o644))

		_, err := Load(path)
		require.ErrorIs(t, err, ErrInvalidTable)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.json"))
		require.Error(t, err)
	})

	t.Run("bundled label map", func(t *testing.T) {
		table, err := Load(filepath.Join("..", "..", "models", "label_map.json"))
		require.NoError(t, err)
		assert.Equal(t, 26, table.Len())
		label, ok := table.LabelOf(0)
		require.True(t, ok)
		assert.Equal(t, "A", label)
	})
}
