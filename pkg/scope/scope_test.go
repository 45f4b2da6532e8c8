package scope

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/appdeploy/pkg/system"
)

func testEnv() Environment {
	return Environment{
		Arch:             "x64",
		Elevated:         false,
		Interactive:      true,
		ProgramFilesDir:  filepath.Join("/", "programfiles"),
		UserProgramsDir:  filepath.Join("/", "home", "programs"),
		MachineStateDir:  filepath.Join("/", "programdata", "AppDeploy"),
		UserStateDir:     filepath.Join("/", "home", "state"),
		DesktopDir:       filepath.Join("/", "home", "desktop"),
		CommonDesktopDir: filepath.Join("/", "public", "desktop"),
		StartMenuDir:     filepath.Join("/", "home", "startmenu"),
		CommonStartMenu:  filepath.Join("/", "common", "startmenu"),
	}
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("machine")
	require.NoError(t, err)
	assert.Equal(t, PerMachine, s)

	s, err = ParseScope("User")
	require.NoError(t, err)
	assert.Equal(t, PerUser, s)

	s, err = ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, PerUser, s)

	_, err = ParseScope("global")
	assert.Error(t, err)
}

func TestNormalizeArch(t *testing.T) {
	assert.Equal(t, "x64", NormalizeArch("amd64"))
	assert.Equal(t, "x64", NormalizeArch("X86_64"))
	assert.Equal(t, "x86", NormalizeArch("386"))
	assert.Equal(t, "arm64", NormalizeArch("AARCH64"))
}

func TestNegotiate_ArchGate(t *testing.T) {
	env := testEnv()
	env.Arch = "x86"

	_, err := Negotiate(PerUser, "App", []string{"x64", "arm64"}, env)
	var archErr *ArchitectureUnsupportedError
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, "x86", archErr.Host)
}

func TestNegotiate_PerUser(t *testing.T) {
	env := testEnv()

	res, err := Negotiate(PerUser, "App", []string{"x64"}, env)
	require.NoError(t, err)
	assert.Equal(t, PerUser, res.Scope)
	assert.Equal(t, system.HiveUser, res.Hive)
	assert.Equal(t, filepath.Join(env.UserProgramsDir, "App"), res.AppRoot)
	assert.Equal(t, env.UserStateDir, res.StateDir)
	assert.Equal(t, env.DesktopDir, res.DesktopDir)
	assert.Equal(t, env.StartMenuDir, res.StartMenuDir)
	assert.Equal(t, `Software\Classes`, res.ClassesRoot)
	assert.Equal(t, `Software\Microsoft\Windows\CurrentVersion\Uninstall`, res.UninstallRoot)
	assert.False(t, res.Downgraded)
}

func TestNegotiate_PerMachineElevated(t *testing.T) {
	env := testEnv()
	env.Elevated = true

	res, err := Negotiate(PerMachine, "App", []string{"x64"}, env)
	require.NoError(t, err)
	assert.Equal(t, PerMachine, res.Scope)
	assert.Equal(t, system.HiveMachine, res.Hive)
	assert.Equal(t, filepath.Join(env.ProgramFilesDir, "App"), res.AppRoot)
	assert.Equal(t, env.CommonDesktopDir, res.DesktopDir)
	assert.Equal(t, env.CommonStartMenu, res.StartMenuDir)
	assert.Equal(t, `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`, res.UninstallRoot)
	assert.False(t, res.Downgraded)
}

func TestNegotiate_DowngradesInteractiveUnelevated(t *testing.T) {
	env := testEnv()

	res, err := Negotiate(PerMachine, "App", []string{"x64"}, env)
	require.NoError(t, err)
	assert.Equal(t, PerUser, res.Scope)
	assert.Equal(t, system.HiveUser, res.Hive)
	assert.True(t, res.Downgraded)
}

func TestNegotiate_NonInteractiveUnelevatedFails(t *testing.T) {
	env := testEnv()
	env.Interactive = false

	_, err := Negotiate(PerMachine, "App", []string{"x64"}, env)
	var elevErr *ElevationRequiredError
	assert.ErrorAs(t, err, &elevErr)
}

func TestNegotiate_EmptySupportedArchAcceptsAnyHost(t *testing.T) {
	env := testEnv()
	env.Arch = "arm64"

	_, err := Negotiate(PerUser, "App", nil, env)
	assert.NoError(t, err)
}
