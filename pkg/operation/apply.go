// pkg/operation/apply.go - forward execution of operations.

package operation

import (
	"fmt"

	"github.com/windowsadmins/appdeploy/pkg/system"
)

// Apply performs the mutation, recording into op.State whatever the inverse
// will need. backupPath is where an overwritten file's prior content goes; it
// is unused by operations that never overwrite.
//
// The returned bool reports whether the host actually changed: false means
// the desired state was already present and the operation was skipped.
func (op *Operation) Apply(sys system.System, backupPath string) (bool, error) {
	switch op.Type {
	case TypeCopyFile:
		return op.applyCopyFile(sys, backupPath)
	case TypeCreateDirectory:
		return op.applyCreateDirectory(sys)
	case TypeWriteRegistryValue:
		return op.applyWriteRegistryValue(sys)
	case TypeWriteRegistryKey:
		return op.applyWriteRegistryKey(sys)
	case TypeCreateShortcut:
		return op.applyCreateShortcut(sys)
	case TypeRecordUninstallEntry:
		return op.applyRecordUninstallEntry(sys)
	default:
		return false, fmt.Errorf("unknown operation type %q", op.Type)
	}
}

func (op *Operation) applyCopyFile(sys system.System, backupPath string) (bool, error) {
	srcHash, err := sys.FileSHA256(op.Source)
	if err != nil {
		return false, fmt.Errorf("hashing source %s: %w", op.Source, err)
	}

	exists, err := sys.FileExists(op.Destination)
	if err != nil {
		return false, err
	}
	if exists {
		destHash, err := sys.FileSHA256(op.Destination)
		if err != nil {
			return false, err
		}
		if destHash == srcHash {
			// Already in the desired state; nothing to apply, nothing to undo.
			op.State.InstalledHash = srcHash
			return false, nil
		}
		if !op.Overwrite {
			return false, fmt.Errorf("%w: %s", ErrDestinationExists, op.Destination)
		}
		inUse, err := sys.FileInUse(op.Destination)
		if err != nil {
			return false, err
		}
		if inUse {
			return false, fmt.Errorf("%w: %s", ErrFileInUse, op.Destination)
		}
		// Preserve the prior bytes so rollback restores, not just deletes.
		if err := sys.CopyFile(op.Destination, backupPath); err != nil {
			return false, fmt.Errorf("backing up %s: %w", op.Destination, err)
		}
		op.State.PriorFileExists = true
		op.State.PriorHash = destHash
		op.State.BackupPath = backupPath
	}

	if err := sys.CopyFile(op.Source, op.Destination); err != nil {
		// Best-effort: put the prior bytes back so a failed copy leaves the
		// destination as it was.
		if op.State.PriorFileExists {
			sys.CopyFile(op.State.BackupPath, op.Destination)
		}
		return false, err
	}
	op.State.InstalledHash = srcHash
	return true, nil
}

func (op *Operation) applyCreateDirectory(sys system.System) (bool, error) {
	exists, err := sys.DirExists(op.Directory)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := sys.MkdirAll(op.Directory); err != nil {
		return false, err
	}
	op.State.CreatedByRun = true
	return true, nil
}

func (op *Operation) applyWriteRegistryValue(sys system.System) (bool, error) {
	current, ok, err := sys.GetStringValue(op.Hive, op.KeyPath, op.ValueName)
	if err != nil {
		return false, err
	}
	if ok && current == op.StringValue {
		return false, nil
	}
	op.State.PriorValueExists = ok
	op.State.PriorStringValue = current
	if err := sys.SetStringValue(op.Hive, op.KeyPath, op.ValueName, op.StringValue); err != nil {
		return false, err
	}
	return true, nil
}

func (op *Operation) applyWriteRegistryKey(sys system.System) (bool, error) {
	exists, err := sys.KeyExists(op.Hive, op.KeyPath)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := sys.CreateKey(op.Hive, op.KeyPath); err != nil {
		return false, err
	}
	op.State.CreatedByRun = true
	return true, nil
}

func (op *Operation) applyCreateShortcut(sys system.System) (bool, error) {
	target, ok, err := sys.ShortcutTarget(op.LinkPath)
	if err != nil {
		return false, err
	}
	if ok && target == op.Target {
		return false, nil
	}
	if err := sys.CreateShortcut(op.LinkPath, op.Target, op.WorkingDir, op.IconPath); err != nil {
		return false, err
	}
	return true, nil
}

func (op *Operation) applyRecordUninstallEntry(sys system.System) (bool, error) {
	existed, err := sys.KeyExists(op.Hive, op.KeyPath)
	if err != nil {
		return false, err
	}
	if existed && op.entryMatches(sys) {
		return false, nil
	}
	if !existed {
		if err := sys.CreateKey(op.Hive, op.KeyPath); err != nil {
			return false, err
		}
		op.State.CreatedByRun = true
	}
	for _, v := range op.Values {
		switch v.Kind {
		case "DWORD":
			err = sys.SetDWordValue(op.Hive, op.KeyPath, v.Name, v.DWord)
		default:
			err = sys.SetStringValue(op.Hive, op.KeyPath, v.Name, v.String)
		}
		if err != nil {
			// A failing op must leave nothing behind; the caller's rollback only
			// sees operations that completed.
			if op.State.CreatedByRun {
				for _, c := range op.Values {
					sys.DeleteValue(op.Hive, op.KeyPath, c.Name)
				}
				sys.DeleteKey(op.Hive, op.KeyPath)
				op.State.CreatedByRun = false
			}
			return false, fmt.Errorf("writing uninstall entry value %s: %w", v.Name, err)
		}
	}
	return true, nil
}

// entryMatches reports whether every declared uninstall-entry value is already
// present with the desired content.
func (op *Operation) entryMatches(sys system.System) bool {
	for _, v := range op.Values {
		switch v.Kind {
		case "DWORD":
			cur, ok, err := sys.GetDWordValue(op.Hive, op.KeyPath, v.Name)
			if err != nil || !ok || cur != v.DWord {
				return false
			}
		default:
			cur, ok, err := sys.GetStringValue(op.Hive, op.KeyPath, v.Name)
			if err != nil || !ok || cur != v.String {
				return false
			}
		}
	}
	return true
}
