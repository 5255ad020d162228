package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmcli/internal/model"
	"rmcli/internal/storage"
)

// failingSaveStore never finds a profile and cannot write one.
type failingSaveStore struct {
	saves int
}

func (s *failingSaveStore) Load(id string) (*model.ProfileDocument, error) {
	return nil, &storage.ProfileError{Op: "load", ID: id, Kind: storage.ErrNotFound}
}

func (s *failingSaveStore) Save(id string, doc *model.ProfileDocument) error {
	s.saves++
	return errors.New("read-only filesystem")
}

func TestResolver_DefaultOnEmptyMachine(t *testing.T) {
	store := storage.NewProfileStore(t.TempDir(), nil)
	resolver := NewResolver(store, nil)

	active, err := resolver.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultProfileID, active.ID)
	assert.Equal(t, model.DefaultBaseURL, active.BaseURL)
	assert.False(t, active.TokenPresent)
	assert.True(t, active.IsDefault())

	doc, err := store.Load(model.DefaultProfileID)
	require.NoError(t, err, "default profile is persisted on first use")
	assert.Equal(t, model.DefaultBaseURL, doc.Environments.HTTPBaseURL)
}

func TestResolver_DefaultSurvivesSaveFailure(t *testing.T) {
	store := &failingSaveStore{}
	resolver := NewResolver(store, nil)

	active, err := resolver.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultBaseURL, active.BaseURL)
	assert.Equal(t, 1, store.saves)
}

func TestResolver_ExistingDefault(t *testing.T) {
	store := storage.NewProfileStore(t.TempDir(), nil)
	require.NoError(t, store.UpdateBaseURL("default", "https://api.example.com"))
	require.NoError(t, store.UpdateToken("default", "tok"))

	for _, id := range []string{"", "default"} {
		active, err := NewResolver(store, nil).Resolve(id)
		require.NoError(t, err)
		assert.Equal(t, "default", active.ID)
		assert.Equal(t, "https://api.example.com", active.BaseURL)
		assert.True(t, active.TokenPresent)
	}
}

func TestResolver_ExplicitProfile(t *testing.T) {
	store := storage.NewProfileStore(t.TempDir(), nil)
	id, err := store.CreateNewConfig("https://custom.example.com/", "alice")
	require.NoError(t, err)

	active, err := NewResolver(store, nil).Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, id, active.ID)
	assert.Equal(t, "https://custom.example.com", active.BaseURL)
	assert.False(t, active.IsDefault())
}

func TestResolver_ExplicitProfileNotFound(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewProfileStore(dir, nil)

	_, err := NewResolver(store, nil).Resolve("0b7e8c1e-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Contains(t, err.Error(), "0b7e8c1e-missing")

	_, statErr := os.Stat(filepath.Join(dir, "profiles", "0b7e8c1e-missing.json"))
	assert.True(t, os.IsNotExist(statErr), "a missing explicit profile is never created")
}

func TestResolver_InvalidDefaultIsNotRepaired(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	_, err := NewResolver(storage.NewProfileStore(dir, nil), nil).Resolve("")
	assert.ErrorIs(t, err, storage.ErrInvalidFormat)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(raw))
}
