package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/okian/mudra/internal/domain/calibrate"
)

// MemoryStore implements Store with in-process maps. It backs tests and
// DSN-less deployments; atomicity comes from one mutex over all state,
// matching the single-transaction-per-call model of the Postgres store.
type MemoryStore struct {
	mu sync.Mutex

	profiles     map[string]Profile // key: lowercased username
	tokens       map[string]RunToken
	buckets      map[bucketKey]bucketRow
	quests       map[string]QuestDoc
	calibrations map[string]calibrate.Profile
	submissions  []Submission

	bucketRetention time.Duration
}

type bucketKey struct {
	bucket      string
	identity    string
	windowStart int64
}

type bucketRow struct {
	hits      int
	updatedAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		profiles:        make(map[string]Profile),
		tokens:          make(map[string]RunToken),
		buckets:         make(map[bucketKey]bucketRow),
		quests:          make(map[string]QuestDoc),
		calibrations:    make(map[string]calibrate.Profile),
		bucketRetention: defaultBucketRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetProfile returns the profile for username, case-insensitive.
func (s *MemoryStore) GetProfile(_ context.Context, username string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[strings.ToLower(username)]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// GetProfileByExternalID returns the profile owning externalID.
func (s *MemoryStore) GetProfileByExternalID(_ context.Context, externalID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.ExternalID != "" && p.ExternalID == externalID {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

// CreateProfile inserts a new profile.
func (s *MemoryStore) CreateProfile(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(p.Username)
	if _, exists := s.profiles[key]; exists {
		return ErrConflict
	}
	if p.ExternalID != "" {
		for _, other := range s.profiles {
			if other.ExternalID == p.ExternalID {
				return ErrConflict
			}
		}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.profiles[key] = p
	return nil
}

// UpdateBinding persists an identity binding for username.
func (s *MemoryStore) UpdateBinding(_ context.Context, username, externalID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(username)
	p, ok := s.profiles[key]
	if !ok {
		return ErrNotFound
	}
	p.ExternalID = externalID
	p.SessionID = sessionID
	p.UpdatedAt = time.Now().UTC()
	s.profiles[key] = p
	return nil
}

// InsertToken records a freshly issued run token.
func (s *MemoryStore) InsertToken(_ context.Context, t RunToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[t.Token]; exists {
		return ErrConflict
	}
	s.tokens[t.Token] = t
	return nil
}

// ConsumeToken marks a token used exactly once.
func (s *MemoryStore) ConsumeToken(_ context.Context, token string) (RunToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return RunToken{}, ErrNotFound
	}
	if t.Consumed {
		return RunToken{}, ErrTokenUsed
	}
	t.Consumed = true
	s.tokens[token] = t
	return t, nil
}

// IncrBucket atomically increments the (bucket, identity, window) counter.
func (s *MemoryStore) IncrBucket(_ context.Context, bucket, identity string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucketKey{bucket: bucket, identity: identity, windowStart: windowStart.Unix()}
	row := s.buckets[key]
	row.hits++
	row.updatedAt = time.Now().UTC()
	s.buckets[key] = row
	return row.hits, nil
}

// PruneBuckets drops rate rows whose window started before olderThan.
func (s *MemoryStore) PruneBuckets(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if olderThan.IsZero() {
		olderThan = time.Now().UTC().Add(-s.bucketRetention)
	}
	removed := 0
	for key := range s.buckets {
		if time.Unix(key.windowStart, 0).Before(olderThan) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed, nil
}

// ApplyQuest applies fn to username's quest document atomically.
func (s *MemoryStore) ApplyQuest(_ context.Context, username string, fn func(*QuestDoc) error) (QuestDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(username)
	doc, ok := s.quests[key]
	if !ok {
		doc = QuestDoc{Username: username}
	}
	if err := fn(&doc); err != nil {
		return QuestDoc{}, err
	}
	doc.UpdatedAt = time.Now().UTC()
	s.quests[key] = doc
	return doc, nil
}

// SaveCalibration persists a calibration profile keyed by username.
func (s *MemoryStore) SaveCalibration(_ context.Context, username string, p calibrate.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrations[strings.ToLower(username)] = p
	return nil
}

// GetCalibration returns the stored calibration profile.
func (s *MemoryStore) GetCalibration(_ context.Context, username string) (calibrate.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.calibrations[strings.ToLower(username)]
	if !ok {
		return calibrate.Profile{}, ErrNotFound
	}
	return p, nil
}

// RecordSubmission stores a completed rank run.
func (s *MemoryStore) RecordSubmission(_ context.Context, sub Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, sub)
	return nil
}

// Submissions returns a copy of the recorded submissions, newest last.
// Test helper; the Postgres store exposes this through SQL instead.
func (s *MemoryStore) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}
