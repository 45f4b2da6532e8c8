// pkg/manifest/manifest.go - manifest resolution.
//
// Resolve expands the declared configuration into a PackageManifest and the
// dependency-ordered operation list the transaction manager executes:
// directories before the files inside them, files before the shortcuts and
// registry entries that reference their final paths. Resolve itself performs
// no filesystem access; payload enumeration happens separately in
// ScanPayload so resolution stays a pure data transformation.

package manifest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/windowsadmins/appdeploy/pkg/config"
	"github.com/windowsadmins/appdeploy/pkg/operation"
	"github.com/windowsadmins/appdeploy/pkg/scope"
	"github.com/windowsadmins/appdeploy/pkg/shell"
)

// ConfigurationError reports invalid declared configuration. It is surfaced
// before any host state is touched.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Reason)
}

// PayloadFile is one payload file with its absolute source and its
// destination path relative to the install root.
type PayloadFile struct {
	Source    string
	RelPath   string
	SizeBytes int64
}

// PackageManifest is the immutable, resolved package description.
type PackageManifest struct {
	AppName              string
	AppVersion           string
	Publisher            string
	PackageID            string
	SupportedArch        []string
	Payload              []PayloadFile
	ExeRelativePath      string
	IconRelativePath     string
	AssociationExtension string
	ProgramID            string
}

// ScanPayload walks the payload source root and returns its files with
// destination paths relative to the root. This is the only filesystem access
// in the package.
func ScanPayload(root string) ([]PayloadFile, error) {
	var files []PayloadFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, PayloadFile{Source: path, RelPath: rel, SizeBytes: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning payload root %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// Resolve validates the configuration and produces the manifest plus the
// ordered operation list for the resolved scope. uninstallCmd is the command
// line recorded in the Add/Remove Programs entry.
func Resolve(cfg *config.Configuration, payload []PayloadFile, res scope.Resolution, uninstallCmd string) (*PackageManifest, []operation.Operation, error) {
	if strings.TrimSpace(cfg.AppName) == "" {
		return nil, nil, &ConfigurationError{Field: "AppName", Reason: "must not be empty"}
	}
	if strings.TrimSpace(cfg.PackageID) == "" {
		return nil, nil, &ConfigurationError{Field: "PackageID", Reason: "must not be empty"}
	}
	if len(payload) == 0 {
		return nil, nil, &ConfigurationError{Field: "PayloadRoot", Reason: "payload source root is empty"}
	}
	if _, err := goversion.NewVersion(cfg.AppVersion); err != nil {
		return nil, nil, &ConfigurationError{Field: "AppVersion", Reason: fmt.Sprintf("%q is not a valid version", cfg.AppVersion)}
	}
	if err := validateExtension(cfg.AssociationExtension); err != nil {
		return nil, nil, err
	}

	exeFound := false
	for _, p := range payload {
		if filepath.Clean(p.RelPath) == filepath.Clean(cfg.ExeRelativePath) {
			exeFound = true
			break
		}
	}
	if cfg.ExeRelativePath == "" || !exeFound {
		return nil, nil, &ConfigurationError{Field: "ExeRelativePath", Reason: "entry point is not part of the payload"}
	}

	m := &PackageManifest{
		AppName:              cfg.AppName,
		AppVersion:           cfg.AppVersion,
		Publisher:            cfg.Publisher,
		PackageID:            cfg.PackageID,
		SupportedArch:        cfg.SupportedArchList(),
		Payload:              payload,
		ExeRelativePath:      cfg.ExeRelativePath,
		IconRelativePath:     cfg.IconRelativePath,
		AssociationExtension: cfg.AssociationExtension,
		ProgramID:            shell.ProgramID(cfg.AppName, cfg.AssociationExtension),
	}

	ops := buildOperations(m, cfg.CreateDesktopShortcut, res, uninstallCmd)
	return m, ops, nil
}

func validateExtension(ext string) error {
	if ext == "" {
		return &ConfigurationError{Field: "AssociationExtension", Reason: "must not be empty"}
	}
	if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
		return &ConfigurationError{Field: "AssociationExtension", Reason: "must start with '.'"}
	}
	if strings.ContainsAny(ext, `\/`) {
		return &ConfigurationError{Field: "AssociationExtension", Reason: "must not contain path separators"}
	}
	return nil
}

// buildOperations flattens the manifest into dependency order. The ordering
// here is a guarantee, not an artifact: consumers apply the list as given.
func buildOperations(m *PackageManifest, desktopShortcut bool, res scope.Resolution, uninstallCmd string) []operation.Operation {
	var ops []operation.Operation

	// Directories, parents before children.
	dirSet := map[string]bool{res.AppRoot: true}
	for _, p := range m.Payload {
		rel := filepath.Dir(p.RelPath)
		for rel != "." && rel != string(filepath.Separator) {
			dirSet[filepath.Join(res.AppRoot, rel)] = true
			rel = filepath.Dir(rel)
		}
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		ops = append(ops, operation.Operation{Type: operation.TypeCreateDirectory, Directory: d})
	}

	// Payload copies.
	var totalBytes int64
	for _, p := range m.Payload {
		totalBytes += p.SizeBytes
		ops = append(ops, operation.Operation{
			Type:        operation.TypeCopyFile,
			Source:      p.Source,
			Destination: filepath.Join(res.AppRoot, p.RelPath),
			Overwrite:   true,
		})
	}

	exePath := filepath.Join(res.AppRoot, m.ExeRelativePath)
	iconPath := exePath
	if m.IconRelativePath != "" {
		iconPath = filepath.Join(res.AppRoot, m.IconRelativePath)
	}

	// Shortcuts reference the installed executable, so they follow the copies.
	ops = append(ops, shell.ShortcutOp(res.StartMenuDir, m.AppName, exePath, iconPath))
	if desktopShortcut {
		ops = append(ops, shell.ShortcutOp(res.DesktopDir, m.AppName, exePath, iconPath))
	}

	ops = append(ops, shell.AssociationOps(m.AssociationExtension, m.ProgramID, m.AppName, exePath, res)...)

	ops = append(ops, shell.UninstallEntryOp(
		m.PackageID, m.AppName, m.AppVersion, m.Publisher,
		res.AppRoot, exePath, uninstallCmd, sizeKB(totalBytes), res))

	return ops
}

// sizeKB converts a byte count to whole kilobytes, rounding up.
func sizeKB(bytes int64) uint32 {
	kb := (bytes + 1023) / 1024
	if kb > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(kb)
}
