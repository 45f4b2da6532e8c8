// pkg/shell/shell.go - shell integration expressed as operations.
//
// Nothing here touches the host. The builders emit operation lists the
// transaction manager executes, so every association key and shortcut file is
// journaled and covered by rollback.

package shell

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/appdeploy/pkg/operation"
	"github.com/windowsadmins/appdeploy/pkg/scope"
	"github.com/windowsadmins/appdeploy/pkg/version"
)

// ProgramID derives the registry-level symbolic name an extension maps to,
// e.g. appName "App" and extension ".ets2dlc" yield "App.ets2dlc".
func ProgramID(appName, extension string) string {
	var b strings.Builder
	for _, r := range appName {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String() + extension
}

// AssociationOps builds the operations that register a file-extension
// association: extension mapping, ProgramId display name, default icon, and
// the open command invoking the executable with the activating file as its
// sole argument. Keys are created by explicit operations so rollback knows
// exactly which ones this package owns.
func AssociationOps(extension, programID, displayName, exePath string, res scope.Resolution) []operation.Operation {
	classes := res.ClassesRoot
	extKey := classes + `\` + extension
	progKey := classes + `\` + programID

	key := func(path string) operation.Operation {
		return operation.Operation{
			Type:    operation.TypeWriteRegistryKey,
			Hive:    res.Hive,
			KeyPath: path,
		}
	}
	value := func(path, name, val string, guarded bool) operation.Operation {
		return operation.Operation{
			Type:        operation.TypeWriteRegistryValue,
			Hive:        res.Hive,
			KeyPath:     path,
			ValueName:   name,
			StringValue: val,
			Guarded:     guarded,
		}
	}

	return []operation.Operation{
		key(extKey),
		// The extension mapping is the one value another package could also
		// claim; it is guarded so unregistration never steals a mapping this
		// package no longer owns.
		value(extKey, "", programID, true),
		key(progKey),
		value(progKey, "", displayName, false),
		key(progKey + `\DefaultIcon`),
		value(progKey+`\DefaultIcon`, "", exePath+",0", false),
		key(progKey + `\shell`),
		key(progKey + `\shell\open`),
		key(progKey + `\shell\open\command`),
		value(progKey+`\shell\open\command`, "", fmt.Sprintf(`"%s" "%%1"`, exePath), false),
	}
}

// ShortcutOp builds a single shortcut-file operation in dir.
func ShortcutOp(dir, displayName, exePath, iconPath string) operation.Operation {
	return operation.Operation{
		Type:       operation.TypeCreateShortcut,
		LinkPath:   filepath.Join(dir, displayName+".lnk"),
		Target:     exePath,
		WorkingDir: filepath.Dir(exePath),
		IconPath:   iconPath,
	}
}

// UninstallEntryOp builds the Add/Remove Programs registry entry for the
// package. estimatedSizeKB may be zero when the payload size is unknown.
func UninstallEntryOp(packageID, displayName, appVersion, publisher, installDir, exePath, uninstallCmd string, estimatedSizeKB uint32, res scope.Resolution) operation.Operation {
	values := []operation.UninstallValue{
		{Name: "DisplayName", String: displayName, Kind: "SZ"},
		{Name: "DisplayVersion", String: version.Normalize(appVersion), Kind: "SZ"},
		{Name: "Publisher", String: publisher, Kind: "SZ"},
		{Name: "InstallLocation", String: installDir, Kind: "SZ"},
		{Name: "UninstallString", String: uninstallCmd, Kind: "SZ"},
		{Name: "DisplayIcon", String: exePath, Kind: "SZ"},
		{Name: "InstallDate", String: time.Now().Format("20060102"), Kind: "SZ"},
		{Name: "NoModify", DWord: 1, Kind: "DWORD"},
		{Name: "NoRepair", DWord: 1, Kind: "DWORD"},
	}
	if estimatedSizeKB > 0 {
		values = append(values, operation.UninstallValue{Name: "EstimatedSize", DWord: estimatedSizeKB, Kind: "DWORD"})
	}
	return operation.Operation{
		Type:    operation.TypeRecordUninstallEntry,
		Hive:    res.Hive,
		KeyPath: res.UninstallRoot + `\` + packageID,
		Values:  values,
	}
}
