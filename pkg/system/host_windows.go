//go:build windows

// pkg/system/host_windows.go - the real Windows System implementation.

package system

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"golang.org/x/sys/windows/registry"
)

// Host mutates the live Windows filesystem, registry, and shell.
type Host struct{}

// NewHost returns the System implementation for the running host.
func NewHost() (System, error) {
	return &Host{}, nil
}

func (h *Host) FileExists(path string) (bool, error)   { return fsFileExists(path) }
func (h *Host) DirExists(path string) (bool, error)    { return fsDirExists(path) }
func (h *Host) MkdirAll(path string) error             { return os.MkdirAll(path, 0755) }
func (h *Host) CopyFile(src, dst string) error         { return fsCopyFile(src, dst) }
func (h *Host) RemoveFile(path string) error           { return fsRemoveFile(path) }
func (h *Host) FileSHA256(path string) (string, error) { return fsFileSHA256(path) }

func (h *Host) RemoveDirIfEmpty(path string) (bool, error) {
	return fsRemoveDirIfEmpty(path)
}

func (h *Host) FileInUse(path string) (bool, error) {
	return processFileInUse(path)
}

func hiveRoot(hive Hive) (registry.Key, error) {
	switch hive {
	case HiveMachine:
		return registry.LOCAL_MACHINE, nil
	case HiveUser:
		return registry.CURRENT_USER, nil
	default:
		return 0, fmt.Errorf("unknown registry hive %q", hive)
	}
}

func (h *Host) KeyExists(hive Hive, path string) (bool, error) {
	root, err := hiveRoot(hive)
	if err != nil {
		return false, err
	}
	k, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	k.Close()
	return true, nil
}

func (h *Host) CreateKey(hive Hive, path string) error {
	root, err := hiveRoot(hive)
	if err != nil {
		return err
	}
	k, _, err := registry.CreateKey(root, path, registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("creating registry key %s\\%s: %w", hive, path, err)
	}
	return k.Close()
}

func (h *Host) DeleteKey(hive Hive, path string) error {
	root, err := hiveRoot(hive)
	if err != nil {
		return err
	}
	if err := registry.DeleteKey(root, path); err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("deleting registry key %s\\%s: %w", hive, path, err)
	}
	return nil
}

func (h *Host) KeyHasValues(hive Hive, path string) (bool, error) {
	root, err := hiveRoot(hive)
	if err != nil {
		return false, err
	}
	k, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer k.Close()
	info, err := k.Stat()
	if err != nil {
		return false, err
	}
	return info.ValueCount > 0, nil
}

func (h *Host) GetStringValue(hive Hive, path, name string) (string, bool, error) {
	root, err := hiveRoot(hive)
	if err != nil {
		return "", false, err
	}
	k, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	defer k.Close()
	val, _, err := k.GetStringValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (h *Host) SetStringValue(hive Hive, path, name, value string) error {
	root, err := hiveRoot(hive)
	if err != nil {
		return err
	}
	k, _, err := registry.CreateKey(root, path, registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("opening registry key %s\\%s: %w", hive, path, err)
	}
	defer k.Close()
	return k.SetStringValue(name, value)
}

func (h *Host) GetDWordValue(hive Hive, path, name string) (uint32, bool, error) {
	root, err := hiveRoot(hive)
	if err != nil {
		return 0, false, err
	}
	k, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer k.Close()
	val, _, err := k.GetIntegerValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint32(val), true, nil
}

func (h *Host) SetDWordValue(hive Hive, path, name string, value uint32) error {
	root, err := hiveRoot(hive)
	if err != nil {
		return err
	}
	k, _, err := registry.CreateKey(root, path, registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("opening registry key %s\\%s: %w", hive, path, err)
	}
	defer k.Close()
	return k.SetDWordValue(name, value)
}

func (h *Host) DeleteValue(hive Hive, path, name string) error {
	root, err := hiveRoot(hive)
	if err != nil {
		return err
	}
	k, err := registry.OpenKey(root, path, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return err
	}
	defer k.Close()
	if err := k.DeleteValue(name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return err
	}
	return nil
}

// withShell runs fn against a WScript.Shell COM instance. Shortcut files have
// no file-format API in the standard library, so .lnk handling goes through
// the shell object model.
func withShell(fn func(shell *ole.IDispatch) error) error {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		oleErr := &ole.OleError{}
		// S_FALSE means COM was already initialized on this thread.
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
			return fmt.Errorf("initializing COM: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return fmt.Errorf("creating WScript.Shell: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return err
	}
	defer shell.Release()

	return fn(shell)
}

func (h *Host) CreateShortcut(linkPath, targetPath, workingDir, iconPath string) error {
	return withShell(func(shell *ole.IDispatch) error {
		cs, err := oleutil.CallMethod(shell, "CreateShortcut", linkPath)
		if err != nil {
			return fmt.Errorf("creating shortcut %s: %w", linkPath, err)
		}
		link := cs.ToIDispatch()
		defer link.Release()

		if _, err := oleutil.PutProperty(link, "TargetPath", targetPath); err != nil {
			return err
		}
		if workingDir != "" {
			if _, err := oleutil.PutProperty(link, "WorkingDirectory", workingDir); err != nil {
				return err
			}
		}
		if iconPath != "" {
			if _, err := oleutil.PutProperty(link, "IconLocation", iconPath); err != nil {
				return err
			}
		}
		if _, err := oleutil.CallMethod(link, "Save"); err != nil {
			return fmt.Errorf("saving shortcut %s: %w", linkPath, err)
		}
		return nil
	})
}

func (h *Host) RemoveShortcut(linkPath string) error {
	err := os.Remove(linkPath)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (h *Host) ShortcutTarget(linkPath string) (string, bool, error) {
	exists, err := fsFileExists(linkPath)
	if err != nil || !exists {
		return "", false, err
	}

	var target string
	err = withShell(func(shell *ole.IDispatch) error {
		// CreateShortcut on an existing .lnk loads it without modifying it.
		cs, err := oleutil.CallMethod(shell, "CreateShortcut", linkPath)
		if err != nil {
			return err
		}
		link := cs.ToIDispatch()
		defer link.Release()

		tp, err := oleutil.GetProperty(link, "TargetPath")
		if err != nil {
			return err
		}
		target = tp.ToString()
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return target, true, nil
}
