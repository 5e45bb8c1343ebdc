// Package ingest receives log batches shipped by client processes and
// persists them as NDJSON files, one entry per line. Clients name the
// destination file; names are validated so no batch can escape the log
// directory. Batches carry an id and replays of a recently seen id are
// acknowledged without being written twice.
package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

const (
	// seenBatchLimit bounds the duplicate-detection window. Old ids
	// fall out in arrival order.
	seenBatchLimit = 4096

	// maxLineBytes caps a single stored line when reading files back.
	maxLineBytes = 1 << 20

	defaultTailLimit = 100
)

// ErrBadFilename rejects names with path separators, leading dots or
// other characters that have no business in a log file name.
var ErrBadFilename = errors.New("ingest: invalid log file name")

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidFilename reports whether name is acceptable as a stored log
// file name.
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(name)
}

// FileInfo describes one stored log file.
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store appends batches to NDJSON files under a single directory.
type Store struct {
	dir string

	mu        sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
}

// NewStore creates the directory if needed and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("ingest: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ingest: create log directory: %w", err)
	}
	return &Store{dir: dir, seen: make(map[string]struct{})}, nil
}

// Dir returns the directory the store writes under.
func (st *Store) Dir() string { return st.dir }

// Append writes the entries to the named file and returns the encoded
// lines for fan-out to live tails. A batch id that was appended
// recently is reported as a duplicate and not written again; an empty
// id disables the check.
func (st *Store) Append(filename, batchID string, entries []logging.Entry) (lines [][]byte, duplicate bool, err error) {
	if !ValidFilename(filename) {
		return nil, false, ErrBadFilename
	}

	lines = make([][]byte, 0, len(entries))
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, false, fmt.Errorf("ingest: encode entry: %w", err)
		}
		lines = append(lines, line)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if batchID != "" {
		if _, dup := st.seen[batchID]; dup {
			return nil, true, nil
		}
	}

	f, err := os.OpenFile(filepath.Join(st.dir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("ingest: open %s: %w", filename, err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("ingest: write %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return nil, false, fmt.Errorf("ingest: close %s: %w", filename, err)
	}

	st.rememberLocked(batchID)
	return lines, false, nil
}

// rememberLocked records a delivered batch id, evicting the oldest
// once the window is full. Callers hold mu.
func (st *Store) rememberLocked(batchID string) {
	if batchID == "" {
		return
	}
	st.seen[batchID] = struct{}{}
	st.seenOrder = append(st.seenOrder, batchID)
	for len(st.seenOrder) > seenBatchLimit {
		delete(st.seen, st.seenOrder[0])
		st.seenOrder = st.seenOrder[1:]
	}
}

// Files lists the stored log files sorted by name. Subdirectories and
// hidden files are skipped.
func (st *Store) Files() ([]FileInfo, error) {
	dirEntries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: list log directory: %w", err)
	}
	out := make([]FileInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !ValidFilename(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Name:     de.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Tail returns the last limit lines of the named file in order. The
// not-exist error from opening the file passes through so callers can
// distinguish a missing file from an empty one.
func (st *Store) Tail(filename string, limit int) ([]json.RawMessage, error) {
	if !ValidFilename(filename) {
		return nil, ErrBadFilename
	}
	if limit <= 0 {
		limit = defaultTailLimit
	}

	f, err := os.Open(filepath.Join(st.dir, filename))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]json.RawMessage, limit)
	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		// The scanner reuses its buffer between lines.
		line := append([]byte(nil), scanner.Bytes()...)
		ring[n%limit] = line
		n++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", filename, err)
	}

	count := n
	if count > limit {
		count = limit
	}
	out := make([]json.RawMessage, 0, count)
	for i := n - count; i < n; i++ {
		out = append(out, ring[i%limit])
	}
	return out, nil
}
