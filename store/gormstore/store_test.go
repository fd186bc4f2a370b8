package gormstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db))
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.CreateUser(ctx, &goRiskAuth.User{
		ID:           "u1",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		Roles:        []string{"user"},
		Active:       true,
		CreatedAt:    t0,
	}))
	return s
}

func TestUserLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.UserByEmail(ctx, " alice@example.COM")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)
	require.Equal(t, []string{"user"}, u.Roles)
	require.True(t, u.Active)

	_, err = s.UserByEmail(ctx, "bob@example.com")
	require.ErrorIs(t, err, goRiskAuth.ErrNotFound)
	_, err = s.UserByID(ctx, "nope")
	require.ErrorIs(t, err, goRiskAuth.ErrNotFound)

	require.NoError(t, s.SetUserActive(ctx, "u1", false))
	u, err = s.UserByID(ctx, "u1")
	require.NoError(t, err)
	require.False(t, u.Active)
}

func TestRecordLoginFailureLocksAtThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i < 5; i++ {
		st, err := s.RecordLoginFailure(ctx, "u1", t0, 5, 15*time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, st.FailedAttempts)
		require.Nil(t, st.LockedUntil)
	}
	st, err := s.RecordLoginFailure(ctx, "u1", t0, 5, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 5, st.FailedAttempts)
	require.NotNil(t, st.LockedUntil)
	require.True(t, st.LockedUntil.Equal(t0.Add(15*time.Minute)))

	_, err = s.RecordLoginFailure(ctx, "ghost", t0, 5, time.Minute)
	require.ErrorIs(t, err, goRiskAuth.ErrNotFound)

	// not yet expired
	require.NoError(t, s.ClearLockout(ctx, "u1", t0.Add(time.Minute), true))
	u, _ := s.UserByID(ctx, "u1")
	require.Equal(t, 5, u.FailedAttempts)

	require.NoError(t, s.ClearLockout(ctx, "u1", t0.Add(15*time.Minute), true))
	u, _ = s.UserByID(ctx, "u1")
	require.Zero(t, u.FailedAttempts)
	require.Nil(t, u.LockedUntil)
}

func TestRecordLoginFailureIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RecordLoginFailure(ctx, "u1", t0, 100, time.Minute)
		}()
	}
	wg.Wait()

	u, err := s.UserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 10, u.FailedAttempts)
}

func TestRecordLoginSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordLoginFailure(ctx, "u1", t0, 5, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.RecordLoginSuccess(ctx, "u1", t0, "198.51.100.7"))

	u, err := s.UserByID(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, u.FailedAttempts)
	require.Equal(t, "198.51.100.7", u.LastLoginIP)
	require.NotNil(t, u.LastLoginAt)
	require.True(t, u.LastLoginAt.Equal(t0))

	require.ErrorIs(t, s.RecordLoginSuccess(ctx, "ghost", t0, ""), goRiskAuth.ErrNotFound)
}

func TestMFAEnrollmentAndBackupCodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.MFASecret(ctx, "u1")
	require.ErrorIs(t, err, goRiskAuth.ErrNotFound)

	codes := [][32]byte{sha256.Sum256([]byte("a")), sha256.Sum256([]byte("b"))}
	require.NoError(t, s.SaveMFAEnrollment(ctx, "u1", "SECRET1", codes, t0))
	// re-running setup replaces the pending secret
	require.NoError(t, s.SaveMFAEnrollment(ctx, "u1", "SECRET2", codes, t0))

	sec, err := s.MFASecret(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "SECRET2", sec.Secret)
	require.False(t, sec.Enabled)

	require.NoError(t, s.EnableMFA(ctx, "u1", t0))
	sec, _ = s.MFASecret(ctx, "u1")
	require.True(t, sec.Enabled)
	u, _ := s.UserByID(ctx, "u1")
	require.True(t, u.MFAEnabled)

	hashes, err := s.BackupCodeHashes(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, codes, hashes)

	ok, err := s.ConsumeBackupCode(ctx, "u1", codes[0])
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.ConsumeBackupCode(ctx, "u1", codes[0])
	require.NoError(t, err)
	require.False(t, ok)

	fresh := [][32]byte{sha256.Sum256([]byte("c"))}
	require.NoError(t, s.ReplaceBackupCodes(ctx, "u1", fresh, t0))
	hashes, err = s.BackupCodeHashes(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, fresh, hashes)

	require.ErrorIs(t, s.EnableMFA(ctx, "ghost", t0), goRiskAuth.ErrNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(id, fp string, created time.Time) *goRiskAuth.Session {
		return &goRiskAuth.Session{
			ID:                id,
			UserID:            "u1",
			Token:             "tok-" + id,
			IP:                "198.51.100.7",
			DeviceFingerprint: fp,
			Device:            &goRiskAuth.DeviceInfo{Browser: "Firefox", OS: "Linux"},
			Location:          &goRiskAuth.Location{Country: "US"},
			Active:            true,
			LastActivityAt:    created,
			CreatedAt:         created,
			ExpiresAt:         created.Add(8 * time.Hour),
		}
	}
	require.NoError(t, s.CreateSession(ctx, mk("s1", "fp-1", t0)))
	require.NoError(t, s.CreateSession(ctx, mk("s2", "fp-2", t0.Add(time.Minute))))

	got, err := s.Session(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "Firefox", got.Device.Browser)
	require.Equal(t, "US", got.Location.Country)
	_, err = s.Session(ctx, "missing")
	require.ErrorIs(t, err, goRiskAuth.ErrNotFound)

	touched, err := s.TouchSession(ctx, "s1", t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, touched)
	got, _ = s.Session(ctx, "s1")
	require.True(t, got.LastActivityAt.Equal(t0.Add(time.Hour)))
	touched, err = s.TouchSession(ctx, "missing", t0)
	require.NoError(t, err)
	require.False(t, touched)

	seen, err := s.DeviceSeen(ctx, "u1", "fp-1", t0.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, seen)
	seen, err = s.DeviceSeen(ctx, "u1", "fp-1", t0.Add(time.Second))
	require.NoError(t, err)
	require.False(t, seen)
	seen, err = s.DeviceSeen(ctx, "u1", "", t0.Add(-time.Hour))
	require.NoError(t, err)
	require.False(t, seen)

	active, err := s.ActiveSessions(ctx, "u1", t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "s2", active[0].ID)

	changed, err := s.DeactivateSession(ctx, "s1")
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = s.DeactivateSession(ctx, "s1")
	require.NoError(t, err)
	require.False(t, changed)
	touched, err = s.TouchSession(ctx, "s1", t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, touched, "inactive sessions are not touched")

	n, err := s.DeactivateUserSessions(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	active, err = s.ActiveSessions(ctx, "u1", t0)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestEventsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, typ := range []string{goRiskAuth.EventLoginFailed, goRiskAuth.EventLoginSuccess, goRiskAuth.EventLoginFailed} {
		require.NoError(t, s.AppendEvent(ctx, goRiskAuth.SecurityEvent{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Type:      typ,
			UserID:    "u1",
			Metadata:  map[string]string{"n": fmt.Sprint(i)},
		}))
	}
	require.NoError(t, s.AppendEvent(ctx, goRiskAuth.SecurityEvent{Timestamp: t0, Type: goRiskAuth.EventLoginFailed, UserID: "u2"}))

	evs, err := s.ListEvents(ctx, goRiskAuth.EventQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, evs, 3)
	require.Equal(t, "2", evs[0].Metadata["n"])
	require.NotEmpty(t, evs[0].ID)

	evs, err = s.ListEvents(ctx, goRiskAuth.EventQuery{UserID: "u1", Types: []string{goRiskAuth.EventLoginFailed}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.True(t, evs[0].Timestamp.Equal(t0.Add(2*time.Minute)))

	n, err := s.CountEvents(ctx, goRiskAuth.EventQuery{UserID: "u1", Types: []string{goRiskAuth.EventLoginFailed}, Since: t0.Add(time.Minute)})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.CountEvents(ctx, goRiskAuth.EventQuery{Types: []string{goRiskAuth.EventLoginFailed}})
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
