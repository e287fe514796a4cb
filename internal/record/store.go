package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

var log = logger.Get("RecordStore")

var (
	ErrDuplicateLabel = errors.New("a record with this label already exists")
	ErrNotFound       = errors.New("no record exists with this label")
	ErrLocked         = errors.New("record store is locked by another run")
)

// Store holds the records of one content batch. Records are persisted
// as an ordered JSON array, but are indexed by label in memory so
// lookups and updates do not scan the whole collection.
//
// A Store holds an exclusive lock on its file for as long as it is open;
// a second run attempting to open the same store is rejected with ErrLocked.
type Store struct {
	*sync.Mutex
	filePath string
	fileLock *flock.Flock
	records  []Record
	index    map[int]int
}

// Open acquires the lock for the store at the given path and loads
// any existing records. A missing file results in an empty store,
// whereas a missing parent directory is an error.
func Open(path string) (*Store, error) {
	if info, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("record store directory for '%s' could not be accessed: %w", path, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("record store parent '%s' is not a directory", filepath.Dir(path))
	}

	fileLock := flock.New(path + ".lock")
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock record store: %w", err)
	} else if !locked {
		return nil, ErrLocked
	}

	records, err := Load(path)
	if err != nil {
		fileLock.Unlock()
		return nil, err
	}

	store := &Store{
		Mutex:    &sync.Mutex{},
		filePath: path,
		fileLock: fileLock,
		records:  records,
	}
	store.reindex()

	log.Emit(logger.DEBUG, "Opened record store %s with %d records\n", path, len(records))
	return store, nil
}

// Close releases the lock on the store. Unflushed changes are lost.
func (store *Store) Close() error {
	return store.fileLock.Unlock()
}

// Path returns the file path backing this store.
func (store *Store) Path() string { return store.filePath }

// Flush writes the current records to disk, replacing the store file.
func (store *Store) Flush() error {
	store.Lock()
	defer store.Unlock()

	return Save(store.filePath, store.records)
}

// Records returns a copy of every record in insertion order.
func (store *Store) Records() []Record {
	store.Lock()
	defer store.Unlock()

	out := make([]Record, len(store.records))
	copy(out, store.records)
	return out
}

// Len returns the number of records held.
func (store *Store) Len() int {
	store.Lock()
	defer store.Unlock()

	return len(store.records)
}

// Get returns the record with the label provided.
func (store *Store) Get(label int) (Record, bool) {
	store.Lock()
	defer store.Unlock()

	if idx, ok := store.index[label]; ok {
		return store.records[idx], true
	}

	return Record{}, false
}

// Append validates the record and adds it to the end of the store. Labels
// must be unique, an existing label is rejected with ErrDuplicateLabel.
func (store *Store) Append(rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("record %d is invalid: %w", rec.Label, err)
	}

	store.Lock()
	defer store.Unlock()

	if _, ok := store.index[rec.Label]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateLabel, rec.Label)
	}
	if rec.Status == UNKNOWN {
		rec.Status = FETCHED
	}

	store.records = append(store.records, rec)
	store.index[rec.Label] = len(store.records) - 1
	return nil
}

// Update applies the mutation provided to the record with the given label. If
// the mutation returns an error the record is left untouched. The label of
// a record cannot be changed via Update.
func (store *Store) Update(label int, mutate func(*Record) error) error {
	store.Lock()
	defer store.Unlock()

	idx, ok := store.index[label]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, label)
	}

	updated := store.records[idx]
	if updated.Tags != nil {
		updated.Tags = append(make([]string, 0, len(updated.Tags)), updated.Tags...)
	}
	if err := mutate(&updated); err != nil {
		return err
	}

	updated.Label = label
	store.records[idx] = updated
	return nil
}

// Range returns the records whose labels fall within [start, end] (inclusive),
// in ascending label order. A non-positive end means "no upper bound".
func (store *Store) Range(start int, end int) []Record {
	store.Lock()
	defer store.Unlock()

	out := make([]Record, 0)
	for label, idx := range store.index {
		if label >= start && (end <= 0 || label <= end) {
			out = append(out, store.records[idx])
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// MaxLabel returns the highest label held by the store, or 0 if it is empty.
func (store *Store) MaxLabel() int {
	store.Lock()
	defer store.Unlock()

	max := 0
	for label := range store.index {
		if label > max {
			max = label
		}
	}

	return max
}

// reindex rebuilds the label index from the ordered records. When a store
// file contains the same label more than once (possible with files written
// by older tooling) all entries are kept, and the index refers to the last.
func (store *Store) reindex() {
	store.index = make(map[int]int, len(store.records))
	for i := range store.records {
		rec := &store.records[i]
		if rec.Status == UNKNOWN {
			rec.Status = InferStatus(rec)
		}

		if _, exists := store.index[rec.Label]; exists {
			log.Emit(logger.WARNING, "Store %s contains duplicate label %d; later entry takes precedence\n", store.filePath, rec.Label)
		}
		store.index[rec.Label] = i
	}
}

// Load reads the records from the store file at the given path, in the
// order they were written. A missing file yields no records.
func Load(path string) ([]Record, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make([]Record, 0), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record store '%s': %w", path, err)
	}

	records := make([]Record, 0)
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("record store '%s' is malformed: %w", path, err)
	}

	return records, nil
}

// Save writes the records provided to the given path as a pretty-printed
// JSON array. The content is written to a temporary file in the same directory
// and then renamed over the destination so a crash never leaves a partial store.
func Save(path string, records []Record) error {
	if records == nil {
		records = make([]Record, 0)
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace record store: %w", err)
	}

	return nil
}
