// Package session keeps per-user conversation state: navigation history,
// the active mode, wizard progress, and the id of the menu message being
// edited in place.
package session

import (
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Mode describes what the user's next free-text input means.
type Mode int

const (
	// ModeIdle means free text is matched against menu button labels.
	ModeIdle Mode = iota
	// ModeSearching means free text is a catalog search query.
	ModeSearching
	// ModeFeedback means input is consumed by the feedback wizard.
	ModeFeedback
)

// FeedbackStep is the wizard's current prompt.
type FeedbackStep int

const (
	StepEmail FeedbackStep = iota
	StepText
	StepPhoto
)

// FeedbackState carries the wizard's partially collected record. It survives
// submission failures so the user can retry without re-entering fields.
type FeedbackState struct {
	Step   FeedbackStep
	Email  string
	Text   string
	Photos []string
}

// Session is one user's ephemeral state. History is a stack of category ids,
// top is the currently displayed menu.
type Session struct {
	UserID            int64
	History           []string
	Mode              Mode
	Feedback          *FeedbackState
	LastMenuMessageID int
}

// Store holds sessions with TTL eviction. Updates for one user serialize on
// a per-user lock; distinct users proceed concurrently.
type Store struct {
	cache *gocache.Cache
	ttl   time.Duration

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewStore builds a store whose idle sessions expire after ttl.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		cache: gocache.New(ttl, 10*time.Minute),
		ttl:   ttl,
		locks: make(map[int64]*sync.Mutex),
	}
}

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[userID] = mu
	}
	return mu
}

func (s *Store) key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Update runs fn under the user's lock with the session loaded (created
// lazily on first interaction) and persists the result, refreshing the TTL.
func (s *Store) Update(userID int64, fn func(*Session)) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess := s.load(userID)
	fn(sess)
	s.cache.Set(s.key(userID), sess, gocache.DefaultExpiration)
}

// Peek returns a copy of the user's session without locking out writers for
// the caller's lifetime. The copy shares no mutable internals.
func (s *Store) Peek(userID int64) Session {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess := s.load(userID)
	out := *sess
	out.History = append([]string(nil), sess.History...)
	if sess.Feedback != nil {
		fb := *sess.Feedback
		fb.Photos = append([]string(nil), sess.Feedback.Photos...)
		out.Feedback = &fb
	}
	return out
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// UserIDs lists the ids of all live sessions, used as the default broadcast
// audience. Order is unspecified.
func (s *Store) UserIDs() []int64 {
	items := s.cache.Items()
	ids := make([]int64, 0, len(items))
	for key := range items {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) load(userID int64) *Session {
	if v, found := s.cache.Get(s.key(userID)); found {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	return &Session{UserID: userID, Mode: ModeIdle}
}
