package roster

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logx "rankbot/pkg/logx"
)

// MaxSuggestions caps Suggest results (the chat autocomplete limit).
const MaxSuggestions = 25

// Store caches the roster file and re-reads it only when its mtime moves.
type Store struct {
	path string
	log  logx.Logger

	onLoad func(entries int)

	mu       sync.RWMutex
	entries  []string
	mtime    time.Time
	hasMtime bool

	loads atomic.Uint64
}

type Option func(*Store)

func WithLogger(l logx.Logger) Option { return func(s *Store) { s.log = l } }

// WithLoadHook is called after every successful re-read and after the
// cache is cleared (with 0).
func WithLoadHook(fn func(entries int)) Option { return func(s *Store) { s.onLoad = fn } }

func New(path string, opts ...Option) *Store {
	s := &Store{path: path, log: logx.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Path() string { return s.path }

// Loads counts successful file reads.
func (s *Store) Loads() uint64 { return s.loads.Load() }

// EnsureFresh re-reads the roster when the file mtime differs from the
// cached one. A stat or read failure empties the cache.
func (s *Store) EnsureFresh() {
	st, err := os.Stat(s.path)
	if err != nil {
		s.clear(err)
		return
	}
	mt := st.ModTime()

	s.mu.RLock()
	fresh := s.hasMtime && s.mtime.Equal(mt)
	s.mu.RUnlock()
	if fresh {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.clear(err)
		return
	}
	entries := Parse(data)

	s.mu.Lock()
	s.entries = entries
	s.mtime = mt
	s.hasMtime = true
	s.mu.Unlock()

	s.loads.Add(1)
	s.log.Debug("roster loaded", logx.String("path", s.path), logx.Int("entries", len(entries)))
	if s.onLoad != nil {
		s.onLoad(len(entries))
	}
}

// Invalidate forgets the cached mtime so the next EnsureFresh re-reads.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.hasMtime = false
	s.mu.Unlock()
}

// Entries returns a copy of the cached entries. It does not check the file.
func (s *Store) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len is the cached entry count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Suggest returns up to MaxSuggestions entries starting with prefix,
// ignoring case, in file order.
func (s *Store) Suggest(prefix string) []string {
	s.EnsureFresh()
	prefix = strings.ToLower(strings.TrimSpace(prefix))

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, min(len(s.entries), MaxSuggestions))
	for _, e := range s.entries {
		if len(out) == MaxSuggestions {
			break
		}
		if strings.HasPrefix(strings.ToLower(e), prefix) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) clear(err error) {
	s.mu.Lock()
	had := s.hasMtime || len(s.entries) > 0
	s.entries = nil
	s.mtime = time.Time{}
	s.hasMtime = false
	s.mu.Unlock()

	s.log.Warn("roster unavailable", logx.String("path", s.path), logx.Err(err))
	if had && s.onLoad != nil {
		s.onLoad(0)
	}
}

// Parse keeps trimmed lines that are non-empty, contain "#" and do not
// start with "#". Lines have no length limit.
func Parse(data []byte) []string {
	var out []string
	for raw := range bytes.Lines(data) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 || line[0] == '#' || bytes.IndexByte(line, '#') < 0 {
			continue
		}
		out = append(out, string(line))
	}
	return out
}
