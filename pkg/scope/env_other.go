//go:build !windows

// pkg/scope/env_other.go - environment snapshot capture on non-Windows hosts.
//
// There is no live shell integration off Windows, but negotiation and the
// rest of the engine still resolve sensible roots so the pipeline can run
// against the fake system in tests and dry runs.

package scope

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
)

// CaptureEnvironment snapshots the host state negotiation depends on. The
// Interactive flag is the caller's to set; it reflects how the engine was
// invoked, not a host property.
func CaptureEnvironment() Environment {
	desktop := xdg.UserDirs.Desktop
	if desktop == "" {
		desktop = filepath.Join(xdg.Home, "Desktop")
	}

	return Environment{
		Arch:             NormalizeArch(runtime.GOARCH),
		Elevated:         os.Geteuid() == 0,
		ProgramFilesDir:  "/opt",
		UserProgramsDir:  filepath.Join(xdg.DataHome, "programs"),
		MachineStateDir:  "/var/lib/appdeploy",
		UserStateDir:     filepath.Join(xdg.StateHome, "appdeploy"),
		DesktopDir:       desktop,
		CommonDesktopDir: desktop,
		StartMenuDir:     filepath.Join(xdg.DataHome, "applications"),
		CommonStartMenu:  "/usr/share/applications",
	}
}
