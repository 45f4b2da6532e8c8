//go:build windows

// pkg/scope/env_windows.go - environment snapshot capture on Windows.

package scope

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/yusufpapurcu/wmi"
	"golang.org/x/sys/windows"

	"github.com/windowsadmins/appdeploy/pkg/logging"
)

type win32Processor struct {
	Architecture uint16
}

// Win32_Processor architecture codes.
const (
	procArchX86   = 0
	procArchArm   = 5
	procArchX64   = 9
	procArchArm64 = 12
)

// hostArchitecture asks WMI for the processor architecture so an x86 process
// on a 64-bit host still reports the real machine architecture. Falls back to
// the compiled architecture when the query fails.
func hostArchitecture() string {
	var procs []win32Processor
	if err := wmi.Query("SELECT Architecture FROM Win32_Processor", &procs); err == nil && len(procs) > 0 {
		switch procs[0].Architecture {
		case procArchX86:
			return "x86"
		case procArchArm:
			return "arm"
		case procArchX64:
			return "x64"
		case procArchArm64:
			return "arm64"
		}
	} else if err != nil {
		logging.Debug("WMI processor query failed, using process architecture", "error", err)
	}
	return NormalizeArch(runtime.GOARCH)
}

// isElevated verifies whether the current process token is a member of the
// builtin Administrators group.
func isElevated() bool {
	var adminSid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&adminSid)
	if err != nil {
		return false
	}
	defer windows.FreeSid(adminSid)
	token := windows.Token(0)
	isMember, err := token.IsMember(adminSid)
	return err == nil && isMember
}

// CaptureEnvironment snapshots the host state negotiation depends on. The
// Interactive flag is the caller's to set; it reflects how the engine was
// invoked, not a host property.
func CaptureEnvironment() Environment {
	programFiles := os.Getenv("ProgramW6432")
	if programFiles == "" {
		programFiles = os.Getenv("ProgramFiles")
	}
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	programData := os.Getenv("ProgramData")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	localAppData := os.Getenv("LOCALAPPDATA")
	appData := os.Getenv("APPDATA")
	userProfile := os.Getenv("USERPROFILE")
	public := os.Getenv("PUBLIC")
	if public == "" {
		public = `C:\Users\Public`
	}

	return Environment{
		Arch:             hostArchitecture(),
		Elevated:         isElevated(),
		ProgramFilesDir:  programFiles,
		UserProgramsDir:  filepath.Join(localAppData, "Programs"),
		MachineStateDir:  filepath.Join(programData, "AppDeploy"),
		UserStateDir:     filepath.Join(localAppData, "AppDeploy"),
		DesktopDir:       filepath.Join(userProfile, "Desktop"),
		CommonDesktopDir: filepath.Join(public, "Desktop"),
		StartMenuDir:     filepath.Join(appData, `Microsoft\Windows\Start Menu\Programs`),
		CommonStartMenu:  filepath.Join(programData, `Microsoft\Windows\Start Menu\Programs`),
	}
}
