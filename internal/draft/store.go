package draft

import (
	"bytes"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/hpungsan/loom/internal/errors"
	"github.com/hpungsan/loom/internal/fsutil"
	"github.com/hpungsan/loom/internal/logger"
)

// ChapterSource supplies the outline title and context for a chapter index.
type ChapterSource interface {
	Lookup(i int) (title, context string)
}

// Store is the in-memory draft map backed by one JSON file. Reads and edits
// are safe for concurrent use; only Persist touches disk.
type Store struct {
	path string
	log  *logger.Logger

	mu      sync.RWMutex
	total   int
	records map[int]Record

	// writeMu orders whole-file writes so the last persisted state wins.
	writeMu sync.Mutex
}

// Open loads the store at path and reconciles it against the outline.
// On PERSISTENCE_FAILURE the returned store is still usable in memory.
func Open(path string, chapters ChapterSource, total int, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{path: path, log: log, records: make(map[int]Record)}
	return s, s.Initialize(total, chapters)
}

// Initialize rebuilds the record map for [0,total): persisted prose is kept,
// title and context are refreshed from chapters, and records outside the
// range are dropped. The result is written back immediately.
func (s *Store) Initialize(total int, chapters ChapterSource) error {
	if total < 0 {
		total = 0
	}
	persisted := s.load()

	records := make(map[int]Record, total)
	for i := 0; i < total; i++ {
		rec := persisted[i]
		rec.Title, rec.Context = chapters.Lookup(i)
		records[i] = rec
	}
	if dropped := len(persisted) - countInRange(persisted, total); dropped > 0 {
		s.log.Info("dropping out-of-range drafts", "path", s.path, "count", dropped, "total", total)
	}

	s.mu.Lock()
	s.total = total
	s.records = records
	s.mu.Unlock()

	return s.Persist()
}

// load reads the backing file. Missing or unreadable files yield an empty map.
func (s *Store) load() map[int]Record {
	out := make(map[int]Record)

	data, err := fsutil.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, errors.ErrFileNotFound) {
			s.log.Warn("draft store unreadable, starting empty", "path", s.path, "error", err)
		}
		return out
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn("draft store corrupt, starting empty", "path", s.path, "error", err)
		return out
	}

	for key, val := range raw {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 {
			s.log.Warn("ignoring draft with non-numeric index", "path", s.path, "entry", key)
			continue
		}
		var rec Record
		if err := json.Unmarshal(val, &rec); err != nil {
			s.log.Warn("ignoring corrupt draft record", "path", s.path, "index", i, "error", err)
			continue
		}
		out[i] = rec
	}
	return out
}

func countInRange(m map[int]Record, total int) int {
	n := 0
	for i := range m {
		if i >= 0 && i < total {
			n++
		}
	}
	return n
}

// Get returns the record at index i.
func (s *Store) Get(i int) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= s.total {
		return Record{}, errors.NewIndexOutOfRange(i, s.total)
	}
	return s.records[i], nil
}

// All returns a copy of every record in index order.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, s.total)
	for i := range out {
		out[i] = s.records[i]
	}
	return out
}

// SetPart replaces one part of record i in memory. Call Persist to save it.
func (s *Store) SetPart(i, part int, text string) error {
	if err := ValidatePart(part); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= s.total {
		return errors.NewIndexOutOfRange(i, s.total)
	}
	rec, _ := s.records[i].WithPart(part, text)
	s.records[i] = rec
	return nil
}

// Persist overwrites the backing file with the full current state. Identical
// state always produces identical bytes. On failure memory is left as is.
func (s *Store) Persist() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.encode()
	if err != nil {
		return errors.NewPersistenceFailure(s.path, err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0600); err != nil {
		return errors.NewPersistenceFailure(s.path, err)
	}
	return nil
}

// encode renders the store as a JSON object keyed by decimal index in numeric
// order, indented with four spaces and with non-ASCII text left unescaped.
func (s *Store) encode() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var compact bytes.Buffer
	enc := json.NewEncoder(&compact)
	enc.SetEscapeHTML(false)

	compact.WriteByte('{')
	for i := 0; i < s.total; i++ {
		if i > 0 {
			compact.WriteByte(',')
		}
		compact.WriteString(strconv.Quote(strconv.Itoa(i)))
		compact.WriteByte(':')
		if err := enc.Encode(s.records[i]); err != nil {
			return nil, err
		}
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "    "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Total returns the number of chapters.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Clamp bounds i to [0, Total()-1]. With no chapters it returns 0.
func (s *Store) Clamp(i int) int {
	total := s.Total()
	if i >= total {
		i = total - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}
