package directors

import (
	"testing"

	"clipdash/src/engine"
	"clipdash/src/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFromTemplate(t *testing.T) {
	env := newTestEnv(t)

	descriptor, err := env.registry.Register(RegisterRequest{
		DatabaseID: "clips",
		Name:       "Clipboard",
		Template:   "clipboard",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusInactive, descriptor.Status)
	assert.Equal(t, engine.CategorySystem, descriptor.Category)
	assert.Equal(t, 1, descriptor.SchemaVersion)
	assert.Contains(t, descriptor.Collections, "clipboard_history")

	looked, err := env.registry.Lookup("clips")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusInactive, looked.Status)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Register(RegisterRequest{Name: "x", Template: "clipboard"})
	assert.True(t, errs.IsValidation(err))

	_, err = env.registry.Register(RegisterRequest{DatabaseID: "x", Template: "clipboard"})
	assert.True(t, errs.IsValidation(err))

	_, err = env.registry.Register(RegisterRequest{DatabaseID: "x", Name: "x"})
	assert.True(t, errs.IsValidation(err))

	_, err = env.registry.Register(RegisterRequest{DatabaseID: "x", Name: "x", Template: "nope"})
	assert.True(t, errs.IsValidation(err))
}

func TestRegisterDuplicateLeavesOriginalIntact(t *testing.T) {
	env := newTestEnv(t)

	original, err := env.registry.Register(RegisterRequest{
		DatabaseID: "clips", Name: "Original", Template: "clipboard",
	})
	require.NoError(t, err)

	_, err = env.registry.Register(RegisterRequest{
		DatabaseID: "clips", Name: "Imposter", Template: "notes",
	})
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))

	looked, err := env.registry.Lookup("clips")
	require.NoError(t, err)
	assert.Equal(t, "Original", looked.Name)
	assert.Equal(t, original.CreatedAt, looked.CreatedAt)
}

func TestListFilters(t *testing.T) {
	env := newTestEnv(t)

	for _, req := range []RegisterRequest{
		{DatabaseID: "clips", Name: "zeta", Template: "clipboard"},
		{DatabaseID: "marks", Name: "alpha", Template: "browser"},
		{DatabaseID: "notes", Name: "mid", Template: "notes"},
	} {
		_, err := env.registry.Register(req)
		require.NoError(t, err)
	}
	_, err := env.connections.Connect("marks")
	require.NoError(t, err)

	assert.Len(t, env.registry.List(ListFilter{}), 3)
	assert.Len(t, env.registry.List(ListFilter{Category: engine.CategoryBrowser}), 1)
	assert.Len(t, env.registry.List(ListFilter{Status: engine.StatusActive}), 1)
	assert.Empty(t, env.registry.List(ListFilter{Category: engine.CategoryBrowser, Status: engine.StatusInactive}))

	sorted := env.registry.List(ListFilter{SortBy: "name"})
	require.Len(t, sorted, 3)
	assert.Equal(t, "alpha", sorted[0].Name)
	assert.Equal(t, "zeta", sorted[2].Name)
}

func TestAddCollectionBumpsSchemaVersion(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Register(RegisterRequest{DatabaseID: "clips", Name: "c", Template: "clipboard"})
	require.NoError(t, err)

	err = env.registry.AddCollection("clips", "snippets", engine.CollectionSchema{KeyPath: "id", AutoIncrement: true})
	require.NoError(t, err)

	descriptor, err := env.registry.Lookup("clips")
	require.NoError(t, err)
	assert.Equal(t, 2, descriptor.SchemaVersion)
	assert.Contains(t, descriptor.Collections, "snippets")

	err = env.registry.AddCollection("clips", "snippets", engine.CollectionSchema{KeyPath: "id"})
	assert.True(t, errs.IsConflict(err))
}

func TestRemoveDescriptorCleansRelationships(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"clips", "marks", "notes"} {
		_, err := env.registry.Register(RegisterRequest{DatabaseID: id, Name: id, Template: "notes"})
		require.NoError(t, err)
	}

	_, err := env.registry.AddRelationship("clips", "marks", "feeds")
	require.NoError(t, err)
	_, err = env.registry.AddRelationship("marks", "notes", "feeds")
	require.NoError(t, err)
	_, err = env.registry.AddRelationship("clips", "notes", "feeds")
	require.NoError(t, err)

	require.NoError(t, env.registry.RemoveDescriptor("clips"))

	_, err = env.registry.Lookup("clips")
	assert.True(t, errs.IsNotFound(err))

	remaining := env.registry.ListRelationships("")
	require.Len(t, remaining, 1)
	assert.Equal(t, "marks", remaining[0].SourceDB)
}

func TestAddRelationshipRequiresEndpoints(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Register(RegisterRequest{DatabaseID: "clips", Name: "c", Template: "clipboard"})
	require.NoError(t, err)

	_, err = env.registry.AddRelationship("clips", "ghost", "feeds")
	assert.True(t, errs.IsNotFound(err))
	_, err = env.registry.AddRelationship("ghost", "clips", "feeds")
	assert.True(t, errs.IsNotFound(err))
}

func TestRegistrySurvivesReload(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnvAt(t, dir, memoryOpener)

	_, err := env.registry.Register(RegisterRequest{DatabaseID: "clips", Name: "Clipboard", Template: "clipboard"})
	require.NoError(t, err)
	_, err = env.registry.AddRelationship("clips", "clips", "self")
	require.NoError(t, err)

	reloaded := newTestEnvAt(t, dir, memoryOpener)
	descriptor, err := reloaded.registry.Lookup("clips")
	require.NoError(t, err)
	assert.Equal(t, "Clipboard", descriptor.Name)
	assert.Contains(t, descriptor.Collections, "clipboard_history")
	assert.Len(t, reloaded.registry.ListRelationships("clips"), 1)
}
