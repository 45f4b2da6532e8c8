//go:build !windows

// pkg/system/host_other.go - stub host for non-Windows platforms.

package system

import "errors"

// NewHost returns the System implementation for the running host. The engine
// drives the Windows shell and registry, so only Windows has a live host;
// other platforms use the Fake for tests and dry runs.
func NewHost() (System, error) {
	return nil, errors.New("live system access is only supported on windows")
}
