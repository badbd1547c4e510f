package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xkonsti/chat-go/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func testUser(name string, level model.Level) *model.User {
	return &model.User{
		Name:         name,
		PasswordHash: []byte{0x01, 0x02, 0x03},
		Salt:         []byte{0x0A, 0x0B},
		Level:        level,
		CreatedAt:    time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC),
	}
}

func TestSaveAndLoadUser(t *testing.T) {
	s := newTestStore(t)
	want := testUser("alice", model.LevelUser)
	require.NoError(t, s.SaveUser(want))

	got, err := s.UserByName("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.PasswordHash, got.PasswordHash)
	require.Equal(t, want.Salt, got.Salt)
	require.Equal(t, want.Level, got.Level)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at mismatch: %v vs %v", want.CreatedAt, got.CreatedAt)
}

func TestUserByNameAbsent(t *testing.T) {
	s := newTestStore(t)
	got, err := s.UserByName("nobody")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSaveUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveUser(testUser("alice", model.LevelUser)))
	require.Error(t, s.SaveUser(testUser("alice", model.LevelUser)))
}

func TestSaveUserInvalidName(t *testing.T) {
	s := newTestStore(t)
	require.Error(t, s.SaveUser(testUser("not a name", model.LevelUser)))
	require.Error(t, s.SaveUser(testUser("", model.LevelUser)))
}

func TestUpsertPromotesUser(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveUser(testUser("root", model.LevelUser)))

	promoted := testUser("root", model.LevelAdmin)
	promoted.PasswordHash = []byte{0xFF}
	require.NoError(t, s.UpsertUser(promoted))

	got, err := s.UserByName("root")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, model.LevelAdmin, got.Level)
	require.Equal(t, []byte{0xFF}, got.PasswordHash)

	users, err := s.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestListUsersOrdered(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, s.SaveUser(testUser(name, model.LevelUser)))
	}

	users, err := s.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, "alice", users[0].Name)
	require.Equal(t, "bob", users[1].Name)
	require.Equal(t, "carol", users[2].Name)
}

func TestReopenKeepsUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveUser(testUser("alice", model.LevelAdmin)))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, s2.Close()) }()

	got, err := s2.UserByName("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, model.LevelAdmin, got.Level)
}
