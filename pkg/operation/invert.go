// pkg/operation/invert.go - reversal of applied operations.
//
// Invert is only ever called for operations whose journal outcome is Applied;
// skipped operations changed nothing and have nothing to undo.

package operation

import (
	"fmt"

	"github.com/windowsadmins/appdeploy/pkg/system"
)

// Invert undoes the recorded mutation. Errors wrap the package sentinels so
// callers can distinguish retryable contention (ErrFileInUse) and ownership
// refusals (ErrNotOwned, ErrModifiedSinceInstall) from hard failures.
func (op *Operation) Invert(sys system.System) error {
	switch op.Type {
	case TypeCopyFile:
		return op.invertCopyFile(sys)
	case TypeCreateDirectory:
		return op.invertCreateDirectory(sys)
	case TypeWriteRegistryValue:
		return op.invertWriteRegistryValue(sys)
	case TypeWriteRegistryKey:
		return op.invertWriteRegistryKey(sys)
	case TypeCreateShortcut:
		return op.invertCreateShortcut(sys)
	case TypeRecordUninstallEntry:
		return op.invertRecordUninstallEntry(sys)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

func (op *Operation) invertCopyFile(sys system.System) error {
	exists, err := sys.FileExists(op.Destination)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	inUse, err := sys.FileInUse(op.Destination)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: %s", ErrFileInUse, op.Destination)
	}

	// Refuse to touch content the user changed after install, whether the
	// inverse is a delete or a restore from backup.
	hash, err := sys.FileSHA256(op.Destination)
	if err != nil {
		return err
	}
	if op.State.InstalledHash != "" && hash != op.State.InstalledHash {
		return fmt.Errorf("%w: %s", ErrModifiedSinceInstall, op.Destination)
	}

	if op.State.PriorFileExists {
		if op.State.BackupPath == "" {
			return fmt.Errorf("no backup recorded for overwritten file %s", op.Destination)
		}
		if err := sys.CopyFile(op.State.BackupPath, op.Destination); err != nil {
			return fmt.Errorf("restoring %s: %w", op.Destination, err)
		}
		return nil
	}
	return sys.RemoveFile(op.Destination)
}

func (op *Operation) invertCreateDirectory(sys system.System) error {
	if !op.State.CreatedByRun {
		// Pre-existing directory; never ours to delete.
		return nil
	}
	// Only an empty directory is removed; leftover user files keep it alive.
	_, err := sys.RemoveDirIfEmpty(op.Directory)
	return err
}

func (op *Operation) invertWriteRegistryValue(sys system.System) error {
	if op.Guarded {
		current, ok, err := sys.GetStringValue(op.Hive, op.KeyPath, op.ValueName)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if current != op.StringValue {
			return fmt.Errorf("%w: %s\\%s is %q, not %q",
				ErrNotOwned, op.KeyPath, op.ValueName, current, op.StringValue)
		}
	}
	if op.State.PriorValueExists {
		return sys.SetStringValue(op.Hive, op.KeyPath, op.ValueName, op.State.PriorStringValue)
	}
	return sys.DeleteValue(op.Hive, op.KeyPath, op.ValueName)
}

func (op *Operation) invertWriteRegistryKey(sys system.System) error {
	if !op.State.CreatedByRun {
		return nil
	}
	// Our own value inversions run before the key's, so a key we created is
	// empty by now unless another package wrote into it. Leave those alone.
	hasValues, err := sys.KeyHasValues(op.Hive, op.KeyPath)
	if err != nil {
		return err
	}
	if hasValues {
		return fmt.Errorf("%w: key %s still holds values", ErrNotOwned, op.KeyPath)
	}
	return sys.DeleteKey(op.Hive, op.KeyPath)
}

func (op *Operation) invertCreateShortcut(sys system.System) error {
	target, ok, err := sys.ShortcutTarget(op.LinkPath)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if target != op.Target {
		return fmt.Errorf("%w: shortcut %s points at %q", ErrNotOwned, op.LinkPath, target)
	}
	return sys.RemoveShortcut(op.LinkPath)
}

func (op *Operation) invertRecordUninstallEntry(sys system.System) error {
	if op.State.CreatedByRun {
		return sys.DeleteKey(op.Hive, op.KeyPath)
	}
	for _, v := range op.Values {
		if err := sys.DeleteValue(op.Hive, op.KeyPath, v.Name); err != nil {
			return err
		}
	}
	return nil
}
