// Package labels holds the bijective mapping between class names and the
// indices emitted by the classifier.
package labels

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var ErrInvalidTable = errors.New("invalid label table")

// Table is immutable once built and safe for concurrent readers.
type Table struct {
	indexByLabel map[string]int
	labelByIndex []string
}

// New builds a Table from a name->index map. Indices must cover 0..N-1
// exactly once.
func New(label2idx map[string]int) (*Table, error) {
	if len(label2idx) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidTable)
	}

	n := len(label2idx)
	labelByIndex := make([]string, n)
	indexByLabel := make(map[string]int, n)

	for label, idx := range label2idx {
		if label == "" {
			return nil, fmt.Errorf("%w: empty label for index %d", ErrInvalidTable, idx)
		}
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: index %d of %q outside 0..%d", ErrInvalidTable, idx, label, n-1)
		}
		if prev := labelByIndex[idx]; prev != "" {
			return nil, fmt.Errorf("%w: index %d assigned to both %q and %q", ErrInvalidTable, idx, prev, label)
		}
		labelByIndex[idx] = label
		indexByLabel[label] = idx
	}

	return &Table{
		indexByLabel: indexByLabel,
		labelByIndex: labelByIndex,
	}, nil
}

// Load reads a JSON object of the form {"A": 0, "B": 1, ...}.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read label map: %w", err)
	}

	var label2idx map[string]int
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &label2idx); err != nil {
		return nil, fmt.Errorf("%w: failed to parse label map: %v", ErrInvalidTable, err)
	}

	return New(label2idx)
}

func (t *Table) IndexOf(label string) (int, bool) {
	idx, ok := t.indexByLabel[label]
	return idx, ok
}

func (t *Table) LabelOf(index int) (string, bool) {
	if index < 0 || index >= len(t.labelByIndex) {
		return "", false
	}
	return t.labelByIndex[index], true
}

func (t *Table) Len() int {
	return len(t.labelByIndex)
}

// Labels returns a copy of the labels in index order.
func (t *Table) Labels() []string {
	out := make([]string, len(t.labelByIndex))
	copy(out, t.labelByIndex)
	return out
}
