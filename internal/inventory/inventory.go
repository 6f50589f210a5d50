// Package inventory holds the set of files a node is willing to serve
// and the space-accounting discipline that gates uploads.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Record describes one served file.
type Record struct {
	Basename string
	Size     int64
}

// Inventory is the dispatcher-owned file list plus space accounting.
// All methods are safe for concurrent use; the dispatcher is expected
// to be the only caller in practice, but Reserve in particular takes
// the lock so the invariant holds even if that ever changes.
type Inventory struct {
	mu       sync.Mutex
	dir      string
	maxSpace int64
	records  map[string]Record
	order    []string // insertion order, for stable Search results

	available int64
	negative  int64
}

// Index enumerates the regular files in the top level of dir (ignoring
// nested directories and non-regular entries), records each one's
// basename and size, and initializes space accounting: if the on-disk
// total already exceeds maxSpace, available starts at 0 and negative
// absorbs the overflow; otherwise negative is 0 and available is the
// remaining headroom.
func Index(dir string, maxSpace int64) (*Inventory, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("inventory: %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}

	inv := &Inventory{
		dir:      dir,
		maxSpace: maxSpace,
		records:  make(map[string]Record),
	}

	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		rec := Record{Basename: e.Name(), Size: info.Size()}
		inv.records[rec.Basename] = rec
		inv.order = append(inv.order, rec.Basename)
		total += rec.Size
	}

	if total > maxSpace {
		inv.negative = total - maxSpace
		inv.available = 0
	} else {
		inv.available = maxSpace - total
		inv.negative = 0
	}
	return inv, nil
}

// Available returns the current available_space.
func (inv *Inventory) Available() int64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.available
}

// Negative returns the current negative_space.
func (inv *Inventory) Negative() int64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.negative
}

// Find returns the record for basename, if any.
func (inv *Inventory) Find(basename string) (Record, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	r, ok := inv.records[basename]
	return r, ok
}

// Search returns every basename containing substr as a contiguous
// substring, in insertion order. An empty substr matches everything.
func (inv *Inventory) Search(substr string) []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]string, 0, len(inv.order))
	for _, name := range inv.order {
		if strings.Contains(name, substr) {
			out = append(out, name)
		}
	}
	return out
}

// Remove deletes the on-disk file and its record if present, crediting
// space: negative_space first, then available_space. It is a no-op if
// basename is not present, and also if a record exists but its file is
// already gone from disk (e.g. after a failed upload): the record stays
// and nothing is credited.
func (inv *Inventory) Remove(basename string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	rec, ok := inv.records[basename]
	if !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(inv.dir, basename)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	delete(inv.records, basename)
	inv.order = removeName(inv.order, basename)
	inv.credit(rec.Size)
	return nil
}

// credit applies rec.Size back to the accounting pair, draining
// negative_space first. Caller must hold inv.mu.
func (inv *Inventory) credit(size int64) {
	if inv.negative > 0 {
		if size <= inv.negative {
			inv.negative -= size
			return
		}
		size -= inv.negative
		inv.negative = 0
	}
	inv.available += size
}

// Reserve debits size from available_space if there is enough room,
// returning whether the reservation succeeded.
func (inv *Inventory) Reserve(size int64) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.available < size {
		return false
	}
	inv.available -= size
	return true
}

// RegisterBasename adds a not-yet-populated record after a successful
// Reserve. Callers must have already validated basename (non-empty, no
// '/', not already present).
func (inv *Inventory) RegisterBasename(basename string, size int64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.records[basename] = Record{Basename: basename, Size: size}
	inv.order = append(inv.order, basename)
}

// Path returns the absolute path for basename inside the shared
// folder, whether or not a record currently exists for it.
func (inv *Inventory) Path(basename string) string {
	return filepath.Join(inv.dir, basename)
}

// Dir returns the shared folder path.
func (inv *Inventory) Dir() string { return inv.dir }

// MaxSpace returns the configured maximum space.
func (inv *Inventory) MaxSpace() int64 { return inv.maxSpace }

func removeName(names []string, target string) []string {
	for i, n := range names {
		if n == target {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
