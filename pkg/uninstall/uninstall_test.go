package uninstall

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/appdeploy/pkg/config"
	"github.com/windowsadmins/appdeploy/pkg/journal"
	"github.com/windowsadmins/appdeploy/pkg/manifest"
	"github.com/windowsadmins/appdeploy/pkg/retry"
	"github.com/windowsadmins/appdeploy/pkg/scope"
	"github.com/windowsadmins/appdeploy/pkg/system"
	"github.com/windowsadmins/appdeploy/pkg/transaction"
)

const pkgID = "com.example.app"

func fastRetry() retry.RetryConfig {
	return retry.RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, Multiplier: 1.0}
}

// seedAmbientKeys creates the registry roots that always exist on a real
// host, so only keys the install itself created count as ours.
func seedAmbientKeys(t *testing.T, fake *system.Fake) {
	t.Helper()
	require.NoError(t, fake.CreateKey(system.HiveUser, `Software\Classes`))
	require.NoError(t, fake.CreateKey(system.HiveUser, `Software\Microsoft\Windows\CurrentVersion\Uninstall`))
}

type installedApp struct {
	res      scope.Resolution
	fake     *system.Fake
	store    *journal.Store
	baseline []string // registry keys that pre-date the install
}

// installApp runs a complete install transaction against fake (a fresh one
// when nil) and returns the resulting host state for the tests to reverse.
// prepare, when non-nil, runs right before the install to stage pre-existing
// host state such as files the install will overwrite.
func installApp(t *testing.T, fake *system.Fake, prepare func(res scope.Resolution)) *installedApp {
	t.Helper()
	root := t.TempDir()

	payloadDir := filepath.Join(root, "payload")
	require.NoError(t, os.MkdirAll(filepath.Join(payloadDir, "data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(payloadDir, "app.exe"), []byte("exe-bytes"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(payloadDir, "data", "readme.txt"), []byte("read me"), 0644))

	res := scope.Resolution{
		Scope:         scope.PerUser,
		Hive:          system.HiveUser,
		AppRoot:       filepath.Join(root, "apps", "App"),
		StateDir:      filepath.Join(root, "state"),
		DesktopDir:    filepath.Join(root, "desktop"),
		StartMenuDir:  filepath.Join(root, "startmenu"),
		ClassesRoot:   `Software\Classes`,
		UninstallRoot: `Software\Microsoft\Windows\CurrentVersion\Uninstall`,
	}
	for _, d := range []string{res.StateDir, res.DesktopDir, res.StartMenuDir} {
		require.NoError(t, os.MkdirAll(d, 0755))
	}

	cfg := config.GetDefaultConfig()
	cfg.AppName = "App"
	cfg.AppVersion = "1.0.0"
	cfg.PackageID = pkgID
	cfg.PayloadRoot = payloadDir
	cfg.ExeRelativePath = "app.exe"
	cfg.AssociationExtension = ".ets2dlc"
	cfg.CreateDesktopShortcut = true

	payload, err := manifest.ScanPayload(payloadDir)
	require.NoError(t, err)
	man, ops, err := manifest.Resolve(cfg, payload, res, `"appdeploy" --uninstall `+pkgID)
	require.NoError(t, err)

	if fake == nil {
		fake = system.NewFake()
	}
	seedAmbientKeys(t, fake)
	baseline := fake.RegistryKeys()

	if prepare != nil {
		prepare(res)
	}

	store := journal.NewStore(res.StateDir)
	mgr := transaction.NewManager(fake, store)
	mgr.SetRetryConfig(fastRetry())
	_, err = mgr.Apply(man, ops, res)
	require.NoError(t, err)

	return &installedApp{res: res, fake: fake, store: store, baseline: baseline}
}

func (app *installedApp) executor() *Executor {
	e := NewExecutor(app.fake, app.store)
	e.SetRetryConfig(fastRetry())
	return e
}

func TestUninstall_RemovesEverything(t *testing.T) {
	app := installApp(t, nil, nil)

	result, err := app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.JournalRemoved)
	assert.Greater(t, result.Reverted, 0)

	_, statErr := os.Stat(app.res.AppRoot)
	assert.True(t, os.IsNotExist(statErr), "install root should be gone")
	for _, d := range []string{app.res.DesktopDir, app.res.StartMenuDir} {
		entries, err := os.ReadDir(d)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
	assert.Equal(t, app.baseline, app.fake.RegistryKeys())
	assert.False(t, app.store.Exists(pkgID))
}

func TestUninstall_RestoresPriorAssociation(t *testing.T) {
	// Another application owned the extension before our install.
	fake := system.NewFake()
	require.NoError(t, fake.SetStringValue(system.HiveUser, `Software\Classes\.ets2dlc`, "", "Older.prog"))

	app := installApp(t, fake, nil)

	result, err := app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	val, ok, err := app.fake.GetStringValue(system.HiveUser, `Software\Classes\.ets2dlc`, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Older.prog", val)
	assert.Equal(t, app.baseline, app.fake.RegistryKeys())
}

func TestUninstall_LeavesForeignMappingAndKeepsJournal(t *testing.T) {
	app := installApp(t, nil, nil)

	// Another package claimed the extension after our install.
	require.NoError(t, app.fake.SetStringValue(system.HiveUser, `Software\Classes\.ets2dlc`, "", "Other.prog"))

	result, err := app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	// Both the mapping value and the extension key that now carries it are
	// refused.
	require.Len(t, result.Warnings, 2)
	for _, w := range result.Warnings {
		assert.Contains(t, w.Reason, "not owned")
	}
	assert.False(t, result.JournalRemoved)
	assert.True(t, app.store.Exists(pkgID), "journal kept while residual state remains")

	// The foreign mapping is untouched; the rest of our footprint is gone.
	val, ok, err := app.fake.GetStringValue(system.HiveUser, `Software\Classes\.ets2dlc`, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Other.prog", val)
	exists, err := app.fake.KeyExists(system.HiveUser, `Software\Classes\.ets2dlc`)
	require.NoError(t, err)
	assert.True(t, exists)
	_, statErr := os.Stat(app.res.AppRoot)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUninstall_LeavesModifiedFile(t *testing.T) {
	app := installApp(t, nil, nil)

	modified := filepath.Join(app.res.AppRoot, "data", "readme.txt")
	require.NoError(t, os.WriteFile(modified, []byte("user notes"), 0644))

	result, err := app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Reason, "modified since install")
	assert.False(t, result.JournalRemoved)

	// The edited file and its parent directories survive.
	data, readErr := os.ReadFile(modified)
	require.NoError(t, readErr)
	assert.Equal(t, "user notes", string(data))

	// After the user puts the original content back, a second run finishes
	// the cleanup.
	require.NoError(t, os.WriteFile(modified, []byte("read me"), 0644))
	result, err = app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.JournalRemoved)
	_, statErr := os.Stat(app.res.AppRoot)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUninstall_LeavesModifiedOverwrittenFile(t *testing.T) {
	// The install replaced a pre-existing app.exe, taking a backup, and the
	// user edited the installed copy afterwards.
	app := installApp(t, nil, func(res scope.Resolution) {
		require.NoError(t, os.MkdirAll(res.AppRoot, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(res.AppRoot, "app.exe"), []byte("old-exe"), 0755))
	})

	exe := filepath.Join(app.res.AppRoot, "app.exe")
	require.NoError(t, os.WriteFile(exe, []byte("user-edited"), 0755))

	result, err := app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Reason, "modified since install")
	assert.False(t, result.JournalRemoved)

	// The edits stay; the backup does not clobber them.
	data, readErr := os.ReadFile(exe)
	require.NoError(t, readErr)
	assert.Equal(t, "user-edited", string(data))

	// With the installed content back in place, the next run restores the
	// pre-install file from backup.
	require.NoError(t, os.WriteFile(exe, []byte("exe-bytes"), 0755))
	result, err = app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.JournalRemoved)
	data, readErr = os.ReadFile(exe)
	require.NoError(t, readErr)
	assert.Equal(t, "old-exe", string(data))
}

func TestUninstall_MissingJournal(t *testing.T) {
	store := journal.NewStore(t.TempDir())

	_, err := NewExecutor(system.NewFake(), store).Uninstall("com.example.unknown")
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestUninstall_CorruptJournal(t *testing.T) {
	store := journal.NewStore(t.TempDir())
	path := store.Path(pkgID)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0644))

	_, err := NewExecutor(system.NewFake(), store).Uninstall(pkgID)
	assert.ErrorIs(t, err, journal.ErrCorrupt)
}

func TestUninstall_ConcurrentSessionRefused(t *testing.T) {
	app := installApp(t, nil, nil)

	// Hold the session lock as if another run were active.
	release, err := transaction.AcquireSessionLock(app.store, pkgID, "holding-session")
	require.NoError(t, err)
	defer release()

	_, err = app.executor().Uninstall(pkgID)
	var concErr *transaction.ConcurrentSessionError
	assert.ErrorAs(t, err, &concErr)
}

func TestUninstall_RetriesInUseFile(t *testing.T) {
	app := installApp(t, nil, nil)

	exe := filepath.Join(app.res.AppRoot, "app.exe")
	app.fake.SetInUse(exe, true)

	result, err := app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Reason, "in use")
	assert.False(t, result.JournalRemoved)

	// Once the holding process exits, the next run removes the file.
	app.fake.SetInUse(exe, false)
	result, err = app.executor().Uninstall(pkgID)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.JournalRemoved)
	_, statErr := os.Stat(app.res.AppRoot)
	assert.True(t, os.IsNotExist(statErr))
}
