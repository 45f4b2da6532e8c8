// pkg/operation/operation.go - the tagged operation variants applied by the
// transaction manager. Every operation carries its declared intent plus the
// pre-state recorded at apply time, so each one can be inverted later without
// consulting the original manifest.

package operation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/appdeploy/pkg/system"
)

// Type discriminates the operation variants.
type Type string

const (
	TypeCopyFile             Type = "copy-file"
	TypeCreateDirectory      Type = "create-directory"
	TypeWriteRegistryValue   Type = "write-registry-value"
	TypeWriteRegistryKey     Type = "write-registry-key"
	TypeCreateShortcut       Type = "create-shortcut"
	TypeRecordUninstallEntry Type = "record-uninstall-entry"
)

// Sentinel errors callers dispatch on when applying or inverting.
var (
	// ErrFileInUse marks a target locked by a running process; retryable.
	ErrFileInUse = errors.New("target file is in use by a running process")
	// ErrModifiedSinceInstall marks an installed file whose content no longer
	// matches the journal; inversion leaves it in place.
	ErrModifiedSinceInstall = errors.New("file modified since install")
	// ErrNotOwned marks registry state this package did not write; inversion
	// must not remove it.
	ErrNotOwned = errors.New("current state is not owned by this package")
	// ErrDestinationExists marks a copy destination that exists with different
	// content and no overwrite policy.
	ErrDestinationExists = errors.New("destination exists with different content")
)

// UninstallValue is one string value of an Add/Remove Programs entry.
type UninstallValue struct {
	Name   string `json:"name"`
	String string `json:"string,omitempty"`
	DWord  uint32 `json:"dword,omitempty"`
	Kind   string `json:"kind"` // "SZ" or "DWORD"
}

// State is the pre-state snapshot recorded while applying an operation. It is
// what makes the inverse deterministic and total.
type State struct {
	PriorFileExists  bool   `json:"prior_file_exists,omitempty"`
	PriorHash        string `json:"prior_hash,omitempty"`
	BackupPath       string `json:"backup_path,omitempty"`
	InstalledHash    string `json:"installed_hash,omitempty"`
	PriorValueExists bool   `json:"prior_value_exists,omitempty"`
	PriorStringValue string `json:"prior_string_value,omitempty"`
	CreatedByRun     bool   `json:"created_by_run,omitempty"`
}

// Operation is a single journalable mutation. Exactly the fields relevant to
// its Type are populated; the rest stay zero.
type Operation struct {
	Type Type `json:"type"`

	// CopyFile.
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Overwrite   bool   `json:"overwrite,omitempty"`

	// CreateDirectory.
	Directory string `json:"directory,omitempty"`

	// Registry variants.
	Hive        system.Hive `json:"hive,omitempty"`
	KeyPath     string      `json:"key_path,omitempty"`
	ValueName   string      `json:"value_name,omitempty"`
	StringValue string      `json:"string_value,omitempty"`
	// Guarded marks a value another application could legitimately own (the
	// extension mapping); inversion verifies ownership before removal.
	Guarded bool `json:"guarded,omitempty"`

	// CreateShortcut.
	LinkPath   string `json:"link_path,omitempty"`
	Target     string `json:"target,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	IconPath   string `json:"icon_path,omitempty"`

	// RecordUninstallEntry.
	Values []UninstallValue `json:"values,omitempty"`

	State State `json:"state"`
}

// Describe returns a short human-readable summary for logs and reports.
func (op *Operation) Describe() string {
	switch op.Type {
	case TypeCopyFile:
		return fmt.Sprintf("copy %s -> %s", op.Source, op.Destination)
	case TypeCreateDirectory:
		return fmt.Sprintf("create directory %s", op.Directory)
	case TypeWriteRegistryValue:
		return fmt.Sprintf("write %s\\%s [%s]", op.Hive, op.KeyPath, op.ValueName)
	case TypeWriteRegistryKey:
		return fmt.Sprintf("create key %s\\%s", op.Hive, op.KeyPath)
	case TypeCreateShortcut:
		return fmt.Sprintf("create shortcut %s -> %s", op.LinkPath, op.Target)
	case TypeRecordUninstallEntry:
		return fmt.Sprintf("record uninstall entry %s\\%s", op.Hive, op.KeyPath)
	default:
		return string(op.Type)
	}
}

// Bounds is the containment envelope resolved by scope negotiation. No
// operation may mutate anything outside it.
type Bounds struct {
	AppRoot          string
	ShortcutDirs     []string
	Hive             system.Hive
	RegistrySubtrees []string
}

// CheckBounds verifies the operation stays inside the resolved install root,
// shortcut directories, and registry subtrees. Scope containment is absolute:
// a violation fails the whole transaction before any mutation.
func (op *Operation) CheckBounds(b Bounds) error {
	switch op.Type {
	case TypeCopyFile:
		if !pathWithin(b.AppRoot, op.Destination) {
			return fmt.Errorf("copy destination %s escapes install root %s", op.Destination, b.AppRoot)
		}
	case TypeCreateDirectory:
		if !pathWithin(b.AppRoot, op.Directory) && op.Directory != b.AppRoot {
			return fmt.Errorf("directory %s escapes install root %s", op.Directory, b.AppRoot)
		}
	case TypeWriteRegistryValue, TypeWriteRegistryKey, TypeRecordUninstallEntry:
		if op.Hive != b.Hive {
			return fmt.Errorf("registry hive %s does not match resolved hive %s", op.Hive, b.Hive)
		}
		if !keyWithin(b.RegistrySubtrees, op.KeyPath) {
			return fmt.Errorf("registry key %s escapes the designated subtrees", op.KeyPath)
		}
	case TypeCreateShortcut:
		ok := false
		for _, dir := range b.ShortcutDirs {
			if pathWithin(dir, op.LinkPath) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("shortcut %s is outside the allowed shortcut directories", op.LinkPath)
		}
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	return nil
}

func pathWithin(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func keyWithin(subtrees []string, keyPath string) bool {
	key := strings.ToLower(strings.Trim(keyPath, `\`))
	for _, sub := range subtrees {
		s := strings.ToLower(strings.Trim(sub, `\`))
		if key == s || strings.HasPrefix(key, s+`\`) {
			return true
		}
	}
	return false
}
