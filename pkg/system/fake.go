// pkg/system/fake.go - an in-memory System used by tests and dry runs.
//
// Files live on the real filesystem (callers sandbox them under a temp dir);
// the registry is an in-memory tree and shortcuts are small text stub files.
// A Hook can inject failures before any mutation to exercise rollback paths.

package system

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

type fakeValue struct {
	kind string // "SZ" or "DWORD"
	str  string
	dw   uint32
}

// Fake implements System without touching the live registry or shell.
type Fake struct {
	mu        sync.Mutex
	keys      map[string]map[string]fakeValue // hive\path (lowercased) -> value name -> value
	inUse     map[string]bool
	shortcuts map[string]bool // linkPath set, alongside the stub file

	// Hook, when set, runs before every mutation. Returning an error aborts
	// the mutation without applying it.
	Hook func(action, path string) error
}

// NewFake returns an empty fake System.
func NewFake() *Fake {
	return &Fake{
		keys:      make(map[string]map[string]fakeValue),
		inUse:     make(map[string]bool),
		shortcuts: make(map[string]bool),
	}
}

func (f *Fake) hook(action, path string) error {
	if f.Hook != nil {
		return f.Hook(action, path)
	}
	return nil
}

func regKey(hive Hive, path string) string {
	return string(hive) + `\` + strings.ToLower(strings.Trim(path, `\`))
}

// SetInUse marks a file as held by a running process, as seen by FileInUse.
func (f *Fake) SetInUse(path string, inUse bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inUse[strings.ToLower(path)] = inUse
}

// RegistryKeys returns all existing key paths, sorted, for assertions.
func (f *Fake) RegistryKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.keys))
	for k := range f.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Filesystem.

func (f *Fake) FileExists(path string) (bool, error) { return fsFileExists(path) }
func (f *Fake) DirExists(path string) (bool, error)  { return fsDirExists(path) }

func (f *Fake) MkdirAll(path string) error {
	if err := f.hook("mkdir", path); err != nil {
		return err
	}
	return os.MkdirAll(path, 0755)
}

func (f *Fake) CopyFile(src, dst string) error {
	if err := f.hook("copy-file", dst); err != nil {
		return err
	}
	return fsCopyFile(src, dst)
}

func (f *Fake) RemoveFile(path string) error {
	if err := f.hook("remove-file", path); err != nil {
		return err
	}
	return fsRemoveFile(path)
}

func (f *Fake) RemoveDirIfEmpty(path string) (bool, error) {
	if err := f.hook("remove-dir", path); err != nil {
		return false, err
	}
	return fsRemoveDirIfEmpty(path)
}

func (f *Fake) FileSHA256(path string) (string, error) { return fsFileSHA256(path) }

func (f *Fake) FileInUse(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inUse[strings.ToLower(path)], nil
}

// Registry.

func (f *Fake) KeyExists(hive Hive, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[regKey(hive, path)]
	return ok, nil
}

func (f *Fake) CreateKey(hive Hive, path string) error {
	if err := f.hook("create-key", string(hive)+`\`+path); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createKeyLocked(hive, path)
	return nil
}

// createKeyLocked creates the key and, like the real registry API, all of its
// missing parents.
func (f *Fake) createKeyLocked(hive Hive, path string) {
	parts := strings.Split(strings.Trim(path, `\`), `\`)
	for i := range parts {
		k := regKey(hive, strings.Join(parts[:i+1], `\`))
		if _, ok := f.keys[k]; !ok {
			f.keys[k] = make(map[string]fakeValue)
		}
	}
}

func (f *Fake) DeleteKey(hive Hive, path string) error {
	if err := f.hook("delete-key", string(hive)+`\`+path); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := regKey(hive, path)
	if _, ok := f.keys[k]; !ok {
		return nil
	}
	prefix := k + `\`
	for other := range f.keys {
		if strings.HasPrefix(other, prefix) {
			return fmt.Errorf("registry key %s\\%s has subkeys", hive, path)
		}
	}
	delete(f.keys, k)
	return nil
}

func (f *Fake) KeyHasValues(hive Hive, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals, ok := f.keys[regKey(hive, path)]
	return ok && len(vals) > 0, nil
}

func (f *Fake) GetStringValue(hive Hive, path, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals, ok := f.keys[regKey(hive, path)]
	if !ok {
		return "", false, nil
	}
	v, ok := vals[strings.ToLower(name)]
	if !ok || v.kind != "SZ" {
		return "", false, nil
	}
	return v.str, true, nil
}

func (f *Fake) SetStringValue(hive Hive, path, name, value string) error {
	if err := f.hook("set-value", string(hive)+`\`+path+`\`+name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createKeyLocked(hive, path)
	f.keys[regKey(hive, path)][strings.ToLower(name)] = fakeValue{kind: "SZ", str: value}
	return nil
}

func (f *Fake) GetDWordValue(hive Hive, path, name string) (uint32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals, ok := f.keys[regKey(hive, path)]
	if !ok {
		return 0, false, nil
	}
	v, ok := vals[strings.ToLower(name)]
	if !ok || v.kind != "DWORD" {
		return 0, false, nil
	}
	return v.dw, true, nil
}

func (f *Fake) SetDWordValue(hive Hive, path, name string, value uint32) error {
	if err := f.hook("set-value", string(hive)+`\`+path+`\`+name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createKeyLocked(hive, path)
	f.keys[regKey(hive, path)][strings.ToLower(name)] = fakeValue{kind: "DWORD", dw: value}
	return nil
}

func (f *Fake) DeleteValue(hive Hive, path, name string) error {
	if err := f.hook("delete-value", string(hive)+`\`+path+`\`+name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if vals, ok := f.keys[regKey(hive, path)]; ok {
		delete(vals, strings.ToLower(name))
	}
	return nil
}

// Shortcuts are persisted as small text stubs so filesystem assertions and
// round-trip tests behave like real .lnk files.

func (f *Fake) CreateShortcut(linkPath, targetPath, workingDir, iconPath string) error {
	if err := f.hook("create-shortcut", linkPath); err != nil {
		return err
	}
	content := fmt.Sprintf("target=%s\nworkdir=%s\nicon=%s\n", targetPath, workingDir, iconPath)
	if err := os.WriteFile(linkPath, []byte(content), 0644); err != nil {
		return err
	}
	f.mu.Lock()
	f.shortcuts[strings.ToLower(linkPath)] = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) RemoveShortcut(linkPath string) error {
	if err := f.hook("remove-shortcut", linkPath); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.shortcuts, strings.ToLower(linkPath))
	f.mu.Unlock()
	return fsRemoveFile(linkPath)
}

func (f *Fake) ShortcutTarget(linkPath string) (string, bool, error) {
	data, err := os.ReadFile(linkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if target, ok := strings.CutPrefix(line, "target="); ok {
			return target, true, nil
		}
	}
	return "", true, nil
}
