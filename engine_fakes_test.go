package goRiskAuth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore implements every store interface in memory.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*User
	byEmail  map[string]string
	secrets  map[string]*MFASecret
	codes    map[string][][32]byte
	sessions map[string]*Session
	events   []SecurityEvent
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*User{},
		byEmail:  map[string]string{},
		secrets:  map[string]*MFASecret{},
		codes:    map[string][][32]byte{},
		sessions: map[string]*Session{},
	}
}

func (s *memStore) putUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[u.Email] = u.ID
}

func (s *memStore) user(id string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *memStore) UserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *memStore) UserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) RecordLoginFailure(_ context.Context, userID string, now time.Time, threshold int, lockFor time.Duration) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return LockoutState{}, ErrNotFound
	}
	u.FailedAttempts++
	if u.FailedAttempts >= threshold {
		until := now.Add(lockFor)
		u.LockedUntil = &until
	}
	return LockoutState{FailedAttempts: u.FailedAttempts, LockedUntil: u.LockedUntil}, nil
}

func (s *memStore) ClearLockout(_ context.Context, userID string, now time.Time, onlyExpired bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if onlyExpired && (u.LockedUntil == nil || now.Before(*u.LockedUntil)) {
		return nil
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (s *memStore) RecordLoginSuccess(_ context.Context, userID string, at time.Time, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &at
	u.LastLoginIP = ip
	return nil
}

func (s *memStore) MFASecret(_ context.Context, userID string) (*MFASecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.secrets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sec
	return &cp, nil
}

func (s *memStore) SaveMFAEnrollment(_ context.Context, userID, secret string, hashes [][32]byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[userID] = &MFASecret{UserID: userID, Secret: secret, CreatedAt: now, UpdatedAt: now}
	s.codes[userID] = append([][32]byte(nil), hashes...)
	return nil
}

func (s *memStore) EnableMFA(_ context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.secrets[userID]
	if !ok {
		return ErrNotFound
	}
	sec.Enabled = true
	sec.UpdatedAt = now
	s.users[userID].MFAEnabled = true
	return nil
}

func (s *memStore) BackupCodeHashes(_ context.Context, userID string) ([][32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][32]byte(nil), s.codes[userID]...), nil
}

func (s *memStore) ConsumeBackupCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.codes[userID]
	for i := range codes {
		if codes[i] == hash {
			s.codes[userID] = append(codes[:i:i], codes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ReplaceBackupCodes(_ context.Context, userID string, hashes [][32]byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[userID] = append([][32]byte(nil), hashes...)
	return nil
}

func (s *memStore) CreateSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memStore) Session(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) TouchSession(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.Active {
		return false, nil
	}
	sess.LastActivityAt = at
	return true, nil
}

func (s *memStore) DeactivateSession(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.Active {
		return false, nil
	}
	sess.Active = false
	return true, nil
}

func (s *memStore) DeactivateUserSessions(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active {
			sess.Active = false
			n++
		}
	}
	return n, nil
}

func (s *memStore) ActiveSessions(_ context.Context, userID string, now time.Time) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active && now.Before(sess.ExpiresAt) {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) DeviceSeen(_ context.Context, userID, fingerprint string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.DeviceFingerprint == fingerprint && !sess.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) AppendEvent(_ context.Context, event SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) matching(q EventQuery) []SecurityEvent {
	var out []SecurityEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if q.UserID != "" && ev.UserID != q.UserID {
			continue
		}
		if !q.Since.IsZero() && ev.Timestamp.Before(q.Since) {
			continue
		}
		if len(q.Types) > 0 {
			found := false
			for _, typ := range q.Types {
				if typ == ev.Type {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, ev)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

func (s *memStore) ListEvents(_ context.Context, q EventQuery) ([]SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matching(q), nil
}

func (s *memStore) CountEvents(_ context.Context, q EventQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.Limit = 0
	return len(s.matching(q)), nil
}

func (s *memStore) eventsOfType(typ string) []SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SecurityEvent
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// brokenStore fails every user lookup.
type brokenStore struct {
	*memStore
}

func (brokenStore) UserByEmail(context.Context, string) (*User, error) {
	return nil, errors.New("connection refused")
}

type staticGeo map[string]string

func (g staticGeo) Locate(_ context.Context, ip string) (*Location, error) {
	country, ok := g[ip]
	if !ok {
		return nil, errors.New("address not in database")
	}
	return &Location{Country: country}, nil
}

const testPassword = "correct horse battery"

type testEnv struct {
	engine *Engine
	store  *memStore
	clock  *fakeClock
	mr     *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	cfg.Cache.Prefix = "zs"
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newMemStore()
	clock := newFakeClock()
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithSessionStore(store).
		WithEventStore(store).
		WithClock(clock)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	require.NoError(t, err)

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &testEnv{engine: engine, store: store, clock: clock, mr: mr}
}

func (env *testEnv) addUser(t *testing.T, id, email string, roles ...string) {
	t.Helper()
	hash, err := env.engine.hasher.Hash(testPassword)
	require.NoError(t, err)
	env.store.putUser(&User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		Active:       true,
		CreatedAt:    env.clock.Now(),
	})
}

func (env *testEnv) login(email, password string) (*LoginResult, error) {
	return env.loginFrom(context.Background(), LoginRequest{Email: email, Password: password})
}

func (env *testEnv) loginFrom(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	return env.engine.Login(ctx, req)
}
