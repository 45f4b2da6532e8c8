// pkg/system/inuse.go - detection of files held open by running processes.

package system

import (
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/windowsadmins/appdeploy/pkg/logging"
)

// processFileInUse reports whether any running process is executing the given
// file. Matching follows the same rules as blocking-application checks in
// managed-install tools: exact executable path first, then executable name.
func processFileInUse(path string) (bool, error) {
	processes, err := process.Processes()
	if err != nil {
		return false, err
	}

	wantPath := strings.ToLower(filepath.Clean(path))
	wantName := strings.ToLower(filepath.Base(path))

	for _, proc := range processes {
		exe, err := proc.Exe()
		if err == nil && strings.ToLower(filepath.Clean(exe)) == wantPath {
			logging.Debug("File is in use by running process", "path", path, "pid", proc.Pid)
			return true, nil
		}
		if exe != "" {
			continue
		}
		// Exe can be unavailable for restricted processes; fall back to the
		// process name when the target looks like an executable.
		name, err := proc.Name()
		if err != nil {
			continue
		}
		if strings.HasSuffix(wantName, ".exe") && strings.ToLower(name) == wantName {
			logging.Debug("File may be in use by process name match", "path", path, "pid", proc.Pid)
			return true, nil
		}
	}
	return false, nil
}
