package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserStore(t *testing.T, path string) *UserStore {
	t.Helper()

	store, err := NewUserStore(path, "test-key")
	require.NoError(t, err)
	return store
}

func TestAddAndVerifyUser(t *testing.T) {
	store := newTestUserStore(t, filepath.Join(t.TempDir(), "users.enc"))

	created, err := store.AddUser(NewUser{UserID: "u1", Username: "alice", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.Empty(t, created.PasswordHash.Hash)

	valid, user, err := store.VerifyCredentials("alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, valid)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.UserID)

	valid, user, err = store.VerifyCredentials("alice", "wrong")
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Nil(t, user)

	valid, _, err = store.VerifyCredentials("nobody", "hunter2")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestAddUserRejectsDuplicates(t *testing.T) {
	store := newTestUserStore(t, filepath.Join(t.TempDir(), "users.enc"))

	_, err := store.AddUser(NewUser{UserID: "u1", Username: "alice", Password: "a"})
	require.NoError(t, err)
	_, err = store.AddUser(NewUser{UserID: "u2", Username: "alice", Password: "b"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestUpdateUserChangesPassword(t *testing.T) {
	store := newTestUserStore(t, filepath.Join(t.TempDir(), "users.enc"))

	_, err := store.AddUser(NewUser{UserID: "u1", Username: "alice", Password: "old"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateUser(NewUser{Username: "alice", Password: "new"}))

	valid, _, err := store.VerifyCredentials("alice", "old")
	require.NoError(t, err)
	assert.False(t, valid)

	valid, _, err = store.VerifyCredentials("alice", "new")
	require.NoError(t, err)
	assert.True(t, valid)

	assert.ErrorIs(t, store.UpdateUser(NewUser{Username: "ghost", Password: "x"}), ErrUserNotFound)
}

func TestRemoveUser(t *testing.T) {
	store := newTestUserStore(t, filepath.Join(t.TempDir(), "users.enc"))

	_, err := store.AddUser(NewUser{UserID: "u1", Username: "alice", Password: "a"})
	require.NoError(t, err)
	require.NoError(t, store.RemoveUser("alice"))

	_, err = store.GetUser("alice")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, store.RemoveUser("alice"), ErrUserNotFound)
}

// The on-disk file is AES-GCM encrypted; a fresh store with the same key
// reads it back, a store with a different key cannot.
func TestUserStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.enc")

	store := newTestUserStore(t, path)
	_, err := store.AddUser(NewUser{UserID: "u1", Username: "alice", Password: "hunter2"})
	require.NoError(t, err)

	reopened := newTestUserStore(t, path)
	assert.Equal(t, []string{"alice"}, reopened.ListUsers())

	valid, _, err := reopened.VerifyCredentials("alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, valid)

	_, err = NewUserStore(path, "wrong-key")
	assert.Error(t, err)
}
