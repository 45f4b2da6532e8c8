package shell

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/appdeploy/pkg/operation"
	"github.com/windowsadmins/appdeploy/pkg/scope"
	"github.com/windowsadmins/appdeploy/pkg/system"
)

func testResolution() scope.Resolution {
	return scope.Resolution{
		Scope:         scope.PerUser,
		Hive:          system.HiveUser,
		ClassesRoot:   `Software\Classes`,
		UninstallRoot: `Software\Microsoft\Windows\CurrentVersion\Uninstall`,
	}
}

func TestProgramID(t *testing.T) {
	assert.Equal(t, "App.ets2dlc", ProgramID("App", ".ets2dlc"))
	assert.Equal(t, "ETS2DLCTools.ets2dlc", ProgramID("ETS2 DLC Tools", ".ets2dlc"))
	assert.Equal(t, "MyApp2.dat", ProgramID("My-App 2!", ".dat"))
}

func TestAssociationOps(t *testing.T) {
	exe := filepath.Join("/", "apps", "App", "app.exe")
	ops := AssociationOps(".ets2dlc", "App.ets2dlc", "App", exe, testResolution())
	require.Len(t, ops, 10)

	// Extension key then its guarded default-value mapping.
	assert.Equal(t, operation.TypeWriteRegistryKey, ops[0].Type)
	assert.Equal(t, `Software\Classes\.ets2dlc`, ops[0].KeyPath)

	assert.Equal(t, operation.TypeWriteRegistryValue, ops[1].Type)
	assert.Equal(t, `Software\Classes\.ets2dlc`, ops[1].KeyPath)
	assert.Equal(t, "", ops[1].ValueName)
	assert.Equal(t, "App.ets2dlc", ops[1].StringValue)
	assert.True(t, ops[1].Guarded, "the extension mapping must be ownership-guarded")

	// Nothing else carries the guard.
	for i, op := range ops {
		if i == 1 {
			continue
		}
		assert.False(t, op.Guarded, "op %d should not be guarded", i)
	}

	// ProgramId display name, icon, and open command.
	assert.Equal(t, `Software\Classes\App.ets2dlc`, ops[3].KeyPath)
	assert.Equal(t, "App", ops[3].StringValue)
	assert.Equal(t, `Software\Classes\App.ets2dlc\DefaultIcon`, ops[5].KeyPath)
	assert.Equal(t, exe+",0", ops[5].StringValue)

	cmd := ops[9]
	assert.Equal(t, `Software\Classes\App.ets2dlc\shell\open\command`, cmd.KeyPath)
	assert.Equal(t, fmt.Sprintf(`"%s" "%%1"`, exe), cmd.StringValue)

	// Keys are created before any value written under them.
	created := map[string]bool{}
	for _, op := range ops {
		switch op.Type {
		case operation.TypeWriteRegistryKey:
			created[op.KeyPath] = true
		case operation.TypeWriteRegistryValue:
			assert.True(t, created[op.KeyPath], "value under %s written before its key", op.KeyPath)
		}
	}

	for _, op := range ops {
		assert.Equal(t, system.HiveUser, op.Hive)
	}
}

func TestShortcutOp(t *testing.T) {
	exe := filepath.Join("/", "apps", "App", "bin", "app.exe")
	op := ShortcutOp(filepath.Join("/", "startmenu"), "App", exe, exe)

	assert.Equal(t, operation.TypeCreateShortcut, op.Type)
	assert.Equal(t, filepath.Join("/", "startmenu", "App.lnk"), op.LinkPath)
	assert.Equal(t, exe, op.Target)
	assert.Equal(t, filepath.Dir(exe), op.WorkingDir)
}

func TestUninstallEntryOp(t *testing.T) {
	installDir := filepath.Join("/", "apps", "App")
	exe := filepath.Join(installDir, "app.exe")
	op := UninstallEntryOp("com.example.app", "App", "1.2.0", "Example Co",
		installDir, exe, `"appdeploy" --uninstall com.example.app`, 2048, testResolution())

	assert.Equal(t, operation.TypeRecordUninstallEntry, op.Type)
	assert.Equal(t, `Software\Microsoft\Windows\CurrentVersion\Uninstall\com.example.app`, op.KeyPath)

	byName := map[string]operation.UninstallValue{}
	for _, v := range op.Values {
		byName[v.Name] = v
	}
	assert.Equal(t, "App", byName["DisplayName"].String)
	assert.Equal(t, "1.2", byName["DisplayVersion"].String)
	assert.Equal(t, "Example Co", byName["Publisher"].String)
	assert.Equal(t, installDir, byName["InstallLocation"].String)
	assert.Equal(t, exe, byName["DisplayIcon"].String)
	assert.Equal(t, uint32(1), byName["NoModify"].DWord)
	assert.Equal(t, uint32(1), byName["NoRepair"].DWord)
	assert.Equal(t, uint32(2048), byName["EstimatedSize"].DWord)
	assert.Len(t, byName["InstallDate"].String, 8)
}

func TestUninstallEntryOp_OmitsZeroSize(t *testing.T) {
	op := UninstallEntryOp("id", "App", "1.0.0", "", "/d", "/d/a.exe", "cmd", 0, testResolution())
	for _, v := range op.Values {
		assert.NotEqual(t, "EstimatedSize", v.Name)
	}
}
