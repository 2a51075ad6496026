// Package dynamic holds the uniforms that are recomputed on every scheduler
// pass.
package dynamic

import (
	"sort"

	"github.com/themkat/shade-eval-print-loop/internal/scheme"
)

// Table maps uniform names to the procedure that produces their value.
// It belongs to the scripting loop and has no lock of its own.
type Table struct {
	entries map[string]scheme.Value
}

func NewTable() *Table {
	return &Table{entries: map[string]scheme.Value{}}
}

// Set registers or replaces the producer for name.
func (t *Table) Set(name string, proc scheme.Value) { t.entries[name] = proc }

// Delete removes name. Deleting a name that is not registered does nothing.
func (t *Table) Delete(name string) { delete(t.entries, name) }

func (t *Table) Get(name string) (scheme.Value, bool) {
	v, ok := t.entries[name]
	return v, ok
}

func (t *Table) Len() int { return len(t.entries) }

// Names returns the registered names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for n := range t.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
