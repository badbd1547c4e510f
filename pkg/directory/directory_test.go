package directory

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/0xkonsti/chat-go/pkg/model"
)

func newTestUser(name string, level model.Level) *model.User {
	return &model.User{
		Name:         name,
		PasswordHash: []byte("hash"),
		Salt:         []byte("salt"),
		Level:        level,
		CreatedAt:    time.Now().UTC(),
	}
}

func newTestSession(t *testing.T, d *Directory) *model.Session {
	t.Helper()
	s := model.NewSession(model.NewOutbox(4))
	d.AddSession(s)
	return s
}

func TestAddUserUnique(t *testing.T) {
	d := New()
	if err := d.AddUser(newTestUser("alice", model.LevelUser)); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	err := d.AddUser(newTestUser("alice", model.LevelUser))
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate AddUser = %v, want ErrUserExists", err)
	}
	if d.CountUsers() != 1 {
		t.Errorf("CountUsers = %d, want 1", d.CountUsers())
	}
}

func TestAuthenticateBindsSession(t *testing.T) {
	d := New()
	if err := d.AddUser(newTestUser("alice", model.LevelAdmin)); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	s := newTestSession(t, d)

	if d.IsAuthenticated(s.ID) {
		t.Error("fresh session reports authenticated")
	}
	if got := d.AccessLevel(s.ID); got != model.LevelGuest {
		t.Errorf("pre-auth level = %v, want guest", got)
	}

	if err := d.Authenticate(s.ID, "alice"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if !d.IsAuthenticated(s.ID) {
		t.Error("session not authenticated after Authenticate")
	}
	if got := d.AccessLevel(s.ID); got != model.LevelAdmin {
		t.Errorf("level = %v, want admin", got)
	}
	if name, ok := d.UsernameBySession(s.ID); !ok || name != "alice" {
		t.Errorf("UsernameBySession = %q, %v", name, ok)
	}
	if target, ok := d.SessionByUsername("alice"); !ok || target.ID != s.ID {
		t.Error("SessionByUsername does not resolve to the bound session")
	}
	if u, _ := d.UserSnapshot("alice"); u.SessionID != s.ID {
		t.Error("user record not bound to the session")
	}
}

func TestAuthenticateErrors(t *testing.T) {
	d := New()
	if err := d.AddUser(newTestUser("alice", model.LevelUser)); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	s1 := newTestSession(t, d)
	s2 := newTestSession(t, d)

	if err := d.Authenticate(uuid.New(), "alice"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("unknown session = %v, want ErrUnknownSession", err)
	}
	if err := d.Authenticate(s1.ID, "nobody"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("unknown user = %v, want ErrUnknownUser", err)
	}

	if err := d.Authenticate(s1.ID, "alice"); err != nil {
		t.Fatalf("Authenticate s1: %v", err)
	}
	if err := d.Authenticate(s2.ID, "alice"); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second binding = %v, want ErrAlreadyBound", err)
	}

	// Re-authenticating the same session is not a second binding.
	if err := d.Authenticate(s1.ID, "alice"); err != nil {
		t.Errorf("re-authenticate same session: %v", err)
	}
}

// A user may hold at most one live session no matter how many race for it.
func TestConcurrentAuthenticateSingleWinner(t *testing.T) {
	d := New()
	if err := d.AddUser(newTestUser("alice", model.LevelUser)); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	const n = 32
	sessions := make([]*model.Session, n)
	for i := range sessions {
		sessions[i] = newTestSession(t, d)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.Authenticate(sessions[i].ID, "alice")
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyBound):
		default:
			t.Errorf("session %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d sessions authenticated, want exactly 1", wins)
	}
	if got := d.CountAuthenticated(); got != 1 {
		t.Errorf("CountAuthenticated = %d, want 1", got)
	}
}

// N concurrent logins for N distinct users all succeed, and every binding
// points both ways.
func TestConcurrentAuthenticateDistinctUsers(t *testing.T) {
	d := New()
	const n = 32
	sessions := make([]*model.Session, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("user%02d", i)
		if err := d.AddUser(newTestUser(name, model.LevelUser)); err != nil {
			t.Fatalf("AddUser %s: %v", name, err)
		}
		sessions[i] = newTestSession(t, d)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.Authenticate(sessions[i].ID, fmt.Sprintf("user%02d", i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
	}
	if got := d.CountAuthenticated(); got != n {
		t.Fatalf("CountAuthenticated = %d, want %d", got, n)
	}
	for i, s := range sessions {
		name := fmt.Sprintf("user%02d", i)
		if got, _ := d.UsernameBySession(s.ID); got != name {
			t.Errorf("session %d bound to %q, want %q", i, got, name)
		}
		u, ok := d.UserSnapshot(name)
		if !ok || u.SessionID != s.ID {
			t.Errorf("user %s session pointer = %v, want %v", name, u.SessionID, s.ID)
		}
	}
}

func TestCloseSessionReleasesUser(t *testing.T) {
	d := New()
	if err := d.AddUser(newTestUser("alice", model.LevelUser)); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	s1 := newTestSession(t, d)
	if err := d.Authenticate(s1.ID, "alice"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	d.CloseSession(s1.ID)
	d.CloseSession(s1.ID) // idempotent

	if d.IsActiveSession(s1.ID) {
		t.Error("closed session still active")
	}
	if _, ok := d.SessionByUsername("alice"); ok {
		t.Error("closed session still routable")
	}
	if u, _ := d.UserSnapshot("alice"); u.Bound() {
		t.Error("user still bound after session close")
	}

	// The user can log in again from a new session.
	s2 := newTestSession(t, d)
	if err := d.Authenticate(s2.ID, "alice"); err != nil {
		t.Fatalf("re-login after close: %v", err)
	}
}

func TestRemoveUnknownSessionIsNoop(t *testing.T) {
	d := New()
	d.RemoveSession(uuid.New())
	d.CloseSession(uuid.New())
	if d.CountSessions() != 0 {
		t.Errorf("CountSessions = %d, want 0", d.CountSessions())
	}
}

func TestHeartbeatAndStaleness(t *testing.T) {
	d := New()
	fresh := newTestSession(t, d)
	stale := newTestSession(t, d)

	d.UpdateHeartbeat(fresh.ID, time.Time{}) // zero means now
	d.UpdateHeartbeat(stale.ID, time.Now().Add(-10*time.Minute))

	ids := d.StaleSessions(5 * time.Minute)
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("StaleSessions = %v, want [%v]", ids, stale.ID)
	}

	// Unknown sessions are ignored.
	d.UpdateHeartbeat(uuid.New(), time.Now())
}

func TestCounts(t *testing.T) {
	d := New()
	if err := d.AddUser(newTestUser("alice", model.LevelUser)); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	s := newTestSession(t, d)
	newTestSession(t, d)

	if got := d.CountSessions(); got != 2 {
		t.Errorf("CountSessions = %d, want 2", got)
	}
	if got := d.CountAuthenticated(); got != 0 {
		t.Errorf("CountAuthenticated = %d, want 0", got)
	}
	if err := d.Authenticate(s.ID, "alice"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got := d.CountAuthenticated(); got != 1 {
		t.Errorf("CountAuthenticated = %d, want 1", got)
	}
	if got := len(d.Sessions()); got != 2 {
		t.Errorf("Sessions = %d entries, want 2", got)
	}
}

func TestDebugStringOmitsSecrets(t *testing.T) {
	d := New()
	u := newTestUser("alice", model.LevelUser)
	u.PasswordHash = []byte("topsecret-hash")
	u.Salt = []byte("topsecret-salt")
	if err := d.AddUser(u); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	s := newTestSession(t, d)
	if err := d.Authenticate(s.ID, "alice"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	dump := d.DebugString()
	if !strings.Contains(dump, "alice") {
		t.Error("dump does not mention the user")
	}
	if !strings.Contains(dump, fmt.Sprint(s.ID)) {
		t.Error("dump does not mention the session")
	}
	if strings.Contains(dump, "topsecret") {
		t.Error("dump leaks password material")
	}
}

func TestShutdownSignal(t *testing.T) {
	d := New()
	select {
	case <-d.ShutdownSignal():
		t.Fatal("shutdown signal fired before trigger")
	default:
	}

	d.TriggerShutdown()
	d.TriggerShutdown() // safe to repeat

	select {
	case <-d.ShutdownSignal():
	case <-time.After(time.Second):
		t.Fatal("shutdown signal did not fire")
	}
}
