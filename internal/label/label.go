// Package label allocates the integer labels which join a media file,
// its thumbnail and its record across every stage of the pipeline.
package label

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hbomb79/mediabatch/pkg/logger"
)

var log = logger.Get("Labels")

var ErrDirectoryMissing = errors.New("label directory does not exist")

// Parse extracts the label from a file name of the form '{label}.{ext}'. The
// extension must match when one is provided. Names whose stem is not a
// positive integer (e.g. '12_cut.mp4', 'intro.mp4') yield false: derived
// files share directories with labelled ones and must not claim a label.
func Parse(name string, ext string) (int, bool) {
	if ext != "" && !strings.EqualFold(filepath.Ext(name), "."+strings.TrimPrefix(ext, ".")) {
		return 0, false
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	end := 0
	for end < len(stem) && stem[end] >= '0' && stem[end] <= '9' {
		end++
	}
	if end == 0 || end != len(stem) {
		return 0, false
	}

	v, err := strconv.Atoi(stem[:end])
	if err != nil || v < 1 {
		return 0, false
	}

	return v, true
}

// Existing returns the sorted, de-duplicated labels of files in the
// directory which match the extension provided.
func Existing(dir string, ext string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryMissing, dir)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read label directory %s: %w", dir, err)
	}

	seen := make(map[int]struct{}, len(entries))
	labels := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if v, ok := Parse(entry.Name(), ext); ok {
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				labels = append(labels, v)
			}
		}
	}

	sort.Ints(labels)
	return labels, nil
}

// Next scans the directory for '{label}.{ext}' files and returns one greater than
// the highest label found, or def if there are none. Gaps are never backfilled.
func Next(dir string, ext string, def int) (int, error) {
	labels, err := Existing(dir, ext)
	if err != nil {
		return 0, err
	}

	if len(labels) == 0 {
		return def, nil
	}

	return labels[len(labels)-1] + 1, nil
}

// Allocator hands out strictly increasing labels for a single run. It is
// seeded from the highest label known to either the directory or the record
// store, and never returns the same label twice.
type Allocator struct {
	*sync.Mutex
	next int
}

// NewAllocator creates an Allocator whose first label is the larger of the
// directory's next label and storeMax+1.
func NewAllocator(dir string, ext string, def int, storeMax int) (*Allocator, error) {
	next, err := Next(dir, ext, def)
	if err != nil {
		return nil, err
	}

	if storeMax+1 > next {
		next = storeMax + 1
	}

	log.Emit(logger.DEBUG, "Label allocation for %s starts at %d\n", dir, next)
	return &Allocator{Mutex: &sync.Mutex{}, next: next}, nil
}

// Take returns the next unused label.
func (alloc *Allocator) Take() int {
	alloc.Lock()
	defer alloc.Unlock()

	v := alloc.next
	alloc.next++
	return v
}

// Peek returns the label the next call to Take will return.
func (alloc *Allocator) Peek() int {
	alloc.Lock()
	defer alloc.Unlock()

	return alloc.next
}
