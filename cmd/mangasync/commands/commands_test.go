package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangasync/mangasync/pkg/config"
	"github.com/mangasync/mangasync/pkg/presenters"
	"github.com/mangasync/mangasync/pkg/steps"
	"github.com/mangasync/mangasync/pkg/stores"
)

const testCatalogue = `source:
  id: 7
  name: local
mangas:
  - key: m1
    title: One
    author: A. Author
    chapters:
      - key: c1
        name: Chapter 1
`

// setupEnv points the commands at a temp database and catalogue.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "library.db")
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalogue), 0o644))

	t.Setenv(config.EnvDatabasePath, dbPath)
	t.Setenv(config.EnvCatalogPath, catalogPath)
	t.Setenv(config.EnvLogLevel, "error")

	configPath, verbose, jsonOutput = "", false, true
	return dbPath
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCommand("test", "none", "now")
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand("1.0.0", "abc", "today")

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "add", "list", "watch", "category", "install"})
	assert.Contains(t, cmd.Version, "1.0.0")
}

func TestAddCommand_GetOrCreate(t *testing.T) {
	dbPath := setupEnv(t)

	require.NoError(t, run(t, "migrate"))
	require.NoError(t, run(t, "add", "m1", "--sync"))
	require.NoError(t, run(t, "add", "m1"))

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	mangas, err := store.ListMangas(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, mangas, 1, "adding twice must not duplicate")
	assert.True(t, mangas[0].Initialized)
	assert.Equal(t, "A. Author", mangas[0].Author)

	chapters, err := store.ListChapters(ctx, mangas[0].ID)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "c1", chapters[0].Key)
}

func TestAddCommand_UnknownKey(t *testing.T) {
	setupEnv(t)
	assert.Error(t, run(t, "add", "missing"))
}

func TestCategoryCommands(t *testing.T) {
	setupEnv(t)

	require.NoError(t, run(t, "category", "add", "Reading"))
	require.NoError(t, run(t, "category", "delete", "1"))
	require.NoError(t, run(t, "category", "delete", "42"), "missing category is not an error")
	require.NoError(t, run(t, "category", "delete", "42", "--strict"))
	assert.Error(t, run(t, "category", "delete", "abc"))
}

func TestInstallCommand(t *testing.T) {
	setupEnv(t)

	require.NoError(t, run(t, "install", "ext.a", "ext.b"))
	assert.Error(t, run(t, "install", "ext.a", "--fail", "ext.a"))
}

func TestSimulateInstall(t *testing.T) {
	ctx := context.Background()

	ok := steps.NewTracker("")
	require.NoError(t, simulateInstall(ctx, ok, time.Millisecond, false))
	assert.Equal(t, steps.StepInstalled, ok.Step())

	bad := steps.NewTracker("")
	require.NoError(t, simulateInstall(ctx, bad, time.Millisecond, true))
	assert.Equal(t, steps.StepError, bad.Step())
	assert.EqualError(t, bad.Err(), "simulated download failure")
}

func TestFinished(t *testing.T) {
	s := presenters.InstallViewState{Steps: map[string]steps.InstallStep{
		"a": steps.StepInstalled,
		"b": steps.StepDownloading,
	}}
	assert.False(t, finished(s, 2))

	s.Steps["b"] = steps.StepError
	assert.True(t, finished(s, 2))
	assert.False(t, finished(s, 3))
}
