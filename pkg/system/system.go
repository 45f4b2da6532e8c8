// pkg/system/system.go - the host resource handle for appdeploy.
//
// Every filesystem, registry, and shell mutation the engine performs goes
// through a System handle. The transaction manager never calls the OS
// directly, which keeps all state changes journalable and lets tests run
// against the in-memory Fake on any platform.

package system

// Hive selects the registry root a key path is relative to.
type Hive string

const (
	HiveMachine Hive = "HKLM"
	HiveUser    Hive = "HKCU"
)

// System is the mutable host surface: files, registry keys, and shortcut
// files. Paths are absolute; registry paths are backslash-separated and
// relative to the hive root.
type System interface {
	// Filesystem.
	FileExists(path string) (bool, error)
	DirExists(path string) (bool, error)
	MkdirAll(path string) error
	CopyFile(src, dst string) error
	RemoveFile(path string) error
	// RemoveDirIfEmpty removes path if it is an empty directory and reports
	// whether it was removed. A non-empty directory is not an error.
	RemoveDirIfEmpty(path string) (bool, error)
	FileSHA256(path string) (string, error)

	// Registry.
	KeyExists(hive Hive, path string) (bool, error)
	CreateKey(hive Hive, path string) error
	// DeleteKey removes a key that has no subkeys.
	DeleteKey(hive Hive, path string) error
	// KeyHasValues reports whether the key exists and holds any values.
	KeyHasValues(hive Hive, path string) (bool, error)
	GetStringValue(hive Hive, path, name string) (value string, ok bool, err error)
	SetStringValue(hive Hive, path, name, value string) error
	GetDWordValue(hive Hive, path, name string) (value uint32, ok bool, err error)
	SetDWordValue(hive Hive, path, name string, value uint32) error
	DeleteValue(hive Hive, path, name string) error

	// Shortcut files.
	CreateShortcut(linkPath, targetPath, workingDir, iconPath string) error
	RemoveShortcut(linkPath string) error
	// ShortcutTarget reads the target of an existing shortcut; ok is false
	// when no shortcut exists at linkPath.
	ShortcutTarget(linkPath string) (target string, ok bool, err error)

	// FileInUse reports whether a running process is executing the file.
	FileInUse(path string) (bool, error)
}
