// Package cache is a content-addressed store of computed validation
// results. A key hashes everything the computation depends on, so a hit
// is bit-identical to a fresh run; staleness is a lookup-and-compare
// against current source-file hashes, not a notification scheme.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/standardbeagle/pixelgate/internal/imagediff"
	"github.com/standardbeagle/pixelgate/internal/metrics"
)

// Entry is one cached diff+metrics result. Entries are stored and
// returned by value so later mutation cannot corrupt the cache.
type Entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`

	// SourceHashes maps the file paths this result depends on (the
	// reference image, typically) to their content hash at computation
	// time. Any mismatch against current file state is a miss.
	SourceHashes map[string]string `json:"source_hashes"`

	Diff    imagediff.Result `json:"diff"`
	Metrics metrics.Report   `json:"metrics"`
}

// Store persists entries under a flat directory, one JSON document and
// one diff-visualization PNG per key, both named by the key hash.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".pixelgate", "cache")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

func (s *Store) entryPath(key string) string { return filepath.Join(s.dir, key+".json") }

// ImagePath returns where the diff-visualization PNG for a key lives.
func (s *Store) ImagePath(key string) string { return filepath.Join(s.dir, key+".png") }

// Get loads the entry for key. A missing, corrupted, or stale entry is
// a miss, never an error: corruption and staleness are recovered from
// by recomputation.
func (s *Store) Get(key string) (*Entry, bool) {
	data, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("[Cache] corrupt entry %s, treating as miss: %v", key, err)
		return nil, false
	}
	if entry.Key != key {
		log.Printf("[Cache] entry %s carries mismatched key %s, treating as miss", key, entry.Key)
		return nil, false
	}

	for path, want := range entry.SourceHashes {
		got, err := HashFile(path)
		if err != nil || got != want {
			return nil, false
		}
	}

	return &entry, true
}

// Put writes the entry and its diff image atomically: each file lands
// under a temp name first and is renamed into place, so a concurrent
// Get never observes a partial write. diffImage may be nil.
func (s *Store) Put(key string, entry *Entry, diffImage image.Image) error {
	entry.Key = key
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := s.writeAtomic(s.entryPath(key), func(w io.Writer) error {
		_, werr := w.Write(data)
		return werr
	}); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	if diffImage != nil {
		if err := s.writeAtomic(s.ImagePath(key), func(w io.Writer) error {
			return png.Encode(w, diffImage)
		}); err != nil {
			return fmt.Errorf("write diff image: %w", err)
		}
	}

	return nil
}

func (s *Store) writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Invalidate removes the entry and its diff image for key.
func (s *Store) Invalidate(key string) error {
	if err := os.Remove(s.entryPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove entry: %w", err)
	}
	if err := os.Remove(s.ImagePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove diff image: %w", err)
	}
	return nil
}

// Prune removes entries older than maxAge and returns how many were
// dropped. Unreadable entries are pruned too.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(f.Name(), ".json")

		entry, ok := s.Get(key)
		if ok && entry.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.Invalidate(key); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, f.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", f.Name(), err)
		}
	}
	return nil
}

// HashFile returns the sha256 hex digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the sha256 hex digest of a byte slice.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
