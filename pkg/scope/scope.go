// pkg/scope/scope.go - privilege and scope negotiation.
//
// Negotiate is a pure decision function over an environment snapshot: it
// picks the effective install scope and resolves every root path and registry
// subtree the transaction is allowed to touch. It never mutates the host.

package scope

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/appdeploy/pkg/system"
)

// InstallScope selects per-machine or per-user installation.
type InstallScope string

const (
	PerMachine InstallScope = "machine"
	PerUser    InstallScope = "user"
)

// ParseScope maps a configuration string to an InstallScope.
func ParseScope(s string) (InstallScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "machine", "permachine", "all-users":
		return PerMachine, nil
	case "user", "peruser", "current-user", "":
		return PerUser, nil
	default:
		return "", fmt.Errorf("unknown install scope %q", s)
	}
}

// Environment is a snapshot of everything negotiation needs from the host.
// Capturing it up front keeps Negotiate deterministic and testable.
type Environment struct {
	Arch        string // normalized: x64, x86, arm64
	Elevated    bool
	Interactive bool

	ProgramFilesDir string // per-machine application base
	UserProgramsDir string // per-user application base

	MachineStateDir string
	UserStateDir    string

	DesktopDir       string // current user's desktop
	CommonDesktopDir string // all-users desktop
	StartMenuDir     string // current user's start menu programs dir
	CommonStartMenu  string // all-users start menu programs dir
}

// Resolution is the negotiated outcome: effective scope plus the containment
// envelope every operation must stay inside.
type Resolution struct {
	Scope         InstallScope
	Hive          system.Hive
	AppRoot       string
	StateDir      string
	DesktopDir    string
	StartMenuDir  string
	ClassesRoot   string // registry subtree for file associations
	UninstallRoot string // registry subtree for Add/Remove Programs entries
	Downgraded    bool   // true when PerMachine was requested but PerUser resolved
}

// ArchitectureUnsupportedError is the hard precondition gate: no mutation is
// ever attempted on an incompatible host.
type ArchitectureUnsupportedError struct {
	Host      string
	Supported []string
}

func (e *ArchitectureUnsupportedError) Error() string {
	return fmt.Sprintf("host architecture %s is not supported (supported: %s)",
		e.Host, strings.Join(e.Supported, ", "))
}

// ElevationRequiredError reports a per-machine request that cannot proceed
// without elevation and cannot be downgraded (non-interactive session).
type ElevationRequiredError struct{}

func (e *ElevationRequiredError) Error() string {
	return "per-machine install requires elevation and the session is not interactive"
}

// NormalizeArch folds common architecture synonyms to x64, x86, arm64.
func NormalizeArch(arch string) string {
	switch strings.ToLower(arch) {
	case "amd64", "x86_64", "x64":
		return "x64"
	case "386", "x86", "i386":
		return "x86"
	case "arm64", "aarch64":
		return "arm64"
	default:
		return strings.ToLower(arch)
	}
}

// Negotiate decides the effective scope for appName and resolves its roots.
//
// Policy: an incompatible architecture fails immediately. A per-machine
// request without elevation downgrades to per-user when the session is
// interactive, and fails otherwise; a downgrade is never silent (the
// Downgraded flag is surfaced to the caller).
func Negotiate(requested InstallScope, appName string, supportedArch []string, env Environment) (Resolution, error) {
	host := NormalizeArch(env.Arch)
	compatible := len(supportedArch) == 0
	for _, a := range supportedArch {
		if NormalizeArch(a) == host {
			compatible = true
			break
		}
	}
	if !compatible {
		return Resolution{}, &ArchitectureUnsupportedError{Host: host, Supported: supportedArch}
	}

	effective := requested
	downgraded := false
	if requested == PerMachine && !env.Elevated {
		if !env.Interactive {
			return Resolution{}, &ElevationRequiredError{}
		}
		effective = PerUser
		downgraded = true
	}

	if effective == PerMachine {
		return Resolution{
			Scope:         PerMachine,
			Hive:          system.HiveMachine,
			AppRoot:       filepath.Join(env.ProgramFilesDir, appName),
			StateDir:      env.MachineStateDir,
			DesktopDir:    env.CommonDesktopDir,
			StartMenuDir:  env.CommonStartMenu,
			ClassesRoot:   `Software\Classes`,
			UninstallRoot: `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`,
		}, nil
	}

	return Resolution{
		Scope:         PerUser,
		Hive:          system.HiveUser,
		AppRoot:       filepath.Join(env.UserProgramsDir, appName),
		StateDir:      env.UserStateDir,
		DesktopDir:    env.DesktopDir,
		StartMenuDir:  env.StartMenuDir,
		ClassesRoot:   `Software\Classes`,
		UninstallRoot: `Software\Microsoft\Windows\CurrentVersion\Uninstall`,
		Downgraded:    downgraded,
	}, nil
}
