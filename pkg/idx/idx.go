// Package idx generates sortable ULID identifiers used for token ids and
// request correlation.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the empty ID. Only use it as a placeholder.
const Zero ID = ""

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

// Source hands out monotonic ULIDs stamped with its clock. It is safe for
// concurrent use.
type Source struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

// NewSource builds a Source. A nil clock falls back to time.Now.
func NewSource(now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	return &Source{
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Next returns a fresh ID stamped with the source clock.
func (s *Source) Next() ID {
	return s.At(s.now())
}

// At returns a fresh ID stamped with t.
func (s *Source) At(t time.Time) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := ulid.MustNew(ulid.Timestamp(t.UTC()), s.entropy)
	return ID(u.String())
}

var (
	globalOnce sync.Once
	global     *Source
)

// New returns a new ULID using the wall clock.
func New() ID {
	globalOnce.Do(func() { global = NewSource(nil) })
	return global.Next()
}

// NewAt returns a new ULID stamped with t. Mostly for tests.
func NewAt(t time.Time) ID {
	globalOnce.Do(func() { global = NewSource(nil) })
	return global.At(t)
}

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

// String returns the canonical string form.
func (id ID) String() string { return string(id) }

// Time extracts the embedded timestamp. Invalid ids yield the zero time.
func (id ID) Time() time.Time {
	if id.IsZero() {
		return time.Time{}
	}
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
