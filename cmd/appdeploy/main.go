// cmd/appdeploy/main.go

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/appdeploy/pkg/config"
	"github.com/windowsadmins/appdeploy/pkg/journal"
	"github.com/windowsadmins/appdeploy/pkg/logging"
	"github.com/windowsadmins/appdeploy/pkg/manifest"
	"github.com/windowsadmins/appdeploy/pkg/scope"
	"github.com/windowsadmins/appdeploy/pkg/system"
	"github.com/windowsadmins/appdeploy/pkg/transaction"
	"github.com/windowsadmins/appdeploy/pkg/uninstall"
	"github.com/windowsadmins/appdeploy/pkg/version"
)

// Exit codes exposed to the presentation layer.
const (
	exitOK                  = 0
	exitConfigError         = 1
	exitPreconditionFailure = 2
	exitTransactionFailed   = 3
	exitPartialRollback     = 4
	exitJournalMissing      = 5
)

func main() {
	installConfig := pflag.String("install", "", "Install using the given YAML configuration file.")
	uninstallID := pflag.String("uninstall", "", "Uninstall the package with the given package id.")
	showConfig := pflag.String("show-config", "", "Display the resolved configuration for a YAML file and exit.")
	initConfig := pflag.String("init-config", "", "Write a starter configuration file to the given path and exit.")
	nonInteractive := pflag.Bool("non-interactive", false, "Fail instead of downgrading scope when elevation is unavailable.")
	versionFlag := pflag.Bool("version", false, "Print the version and exit.")

	var verbosity int
	pflag.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv)")
	pflag.Parse()

	level := "INFO"
	if verbosity >= 1 {
		level = "DEBUG"
	}

	if *versionFlag {
		if verbosity >= 1 {
			version.PrintFull()
		} else {
			version.Print()
		}
		os.Exit(exitOK)
	}

	// Handle system signals for graceful shutdown. The journal's
	// flush-per-entry discipline means a killed session can always be rolled
	// back or resumed by the next run.
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logging.Warn("Signal received, exiting", "signal", sig.String())
		logging.CloseLogger()
		os.Exit(1)
	}()

	switch {
	case *showConfig != "":
		logging.Init(level, "")
		os.Exit(runShowConfig(*showConfig))
	case *initConfig != "":
		logging.Init(level, "")
		os.Exit(runInitConfig(*initConfig))
	case *installConfig != "":
		os.Exit(runInstall(*installConfig, level, !*nonInteractive))
	case *uninstallID != "":
		os.Exit(runUninstall(*uninstallID, level))
	default:
		pflag.Usage()
		os.Exit(exitConfigError)
	}
}

func runShowConfig(path string) int {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logging.Error("Failed to load configuration", "error", err)
		return exitConfigError
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		logging.Error("Failed to serialize configuration", "error", err)
		return exitConfigError
	}
	fmt.Print(string(data))
	return exitOK
}

func runInitConfig(path string) int {
	if _, err := os.Stat(path); err == nil {
		logging.Error("Refusing to overwrite existing configuration", "path", path)
		return exitConfigError
	}
	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		logging.Error("Failed to write configuration", "path", path, "error", err)
		return exitConfigError
	}
	fmt.Printf("Wrote starter configuration to %s\n", path)
	return exitOK
}

func runInstall(configPath, level string, interactive bool) int {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitConfigError
	}
	logging.Init(cfg.LogLevel, "")
	if level == "DEBUG" {
		logging.SetLevel(logging.LevelDebug)
	}
	defer logging.CloseLogger()

	requested, err := scope.ParseScope(cfg.RequestedScope)
	if err != nil {
		logging.Error("Invalid requested scope", "error", err)
		return exitConfigError
	}

	env := scope.CaptureEnvironment()
	env.Interactive = interactive

	res, err := scope.Negotiate(requested, cfg.AppName, cfg.SupportedArchList(), env)
	if err != nil {
		logging.Error("Scope negotiation failed", "error", err)
		return exitPreconditionFailure
	}
	if res.Downgraded {
		logging.Warn("Elevation unavailable, continuing with per-user install",
			"app_root", res.AppRoot)
	}
	if err := logging.AttachFile(filepath.Join(res.StateDir, "logs")); err != nil {
		logging.Warn("Session log unavailable", "error", err)
	}

	payload, err := manifest.ScanPayload(cfg.PayloadRoot)
	if err != nil {
		logging.Error("Failed to scan payload", "error", err)
		return exitConfigError
	}

	man, ops, err := manifest.Resolve(cfg, payload, res, uninstallCommand(cfg.PackageID))
	if err != nil {
		logging.Error("Manifest resolution failed", "error", err)
		return exitConfigError
	}

	sys, err := system.NewHost()
	if err != nil {
		logging.Error("Host system unavailable", "error", err)
		return exitPreconditionFailure
	}

	store := journal.NewStore(res.StateDir)
	mgr := transaction.NewManager(sys, store)

	j, err := mgr.Apply(man, ops, res)
	if err != nil {
		var partial *transaction.PartialRollbackError
		if errors.As(err, &partial) {
			logging.Error("Install failed and rollback is incomplete", "error", partial)
			return exitPartialRollback
		}
		logging.Error("Install failed, host state restored", "error", err)
		return exitTransactionFailed
	}

	logging.Info("Install complete",
		"package", man.PackageID,
		"version", man.AppVersion,
		"app_root", res.AppRoot,
		"journal_entries", len(j.Entries))
	return exitOK
}

func runUninstall(packageID, level string) int {
	logging.Init(level, "")
	defer logging.CloseLogger()

	sys, err := system.NewHost()
	if err != nil {
		logging.Error("Host system unavailable", "error", err)
		return exitPreconditionFailure
	}

	env := scope.CaptureEnvironment()
	store, found := findStore(env, packageID)
	if !found {
		logging.Error("No install journal found for package", "package", packageID)
		return exitJournalMissing
	}

	result, err := uninstall.NewExecutor(sys, store).Uninstall(packageID)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) || errors.Is(err, journal.ErrCorrupt) {
			logging.Error("Install journal missing or corrupt", "package", packageID, "error", err)
			return exitJournalMissing
		}
		logging.Error("Uninstall failed", "package", packageID, "error", err)
		return exitTransactionFailed
	}

	for _, w := range result.Warnings {
		logging.Warn("Left in place", "entry", w.Seq, "what", w.Description, "reason", w.Reason)
	}
	logging.Info("Uninstall complete",
		"package", packageID,
		"reverted", result.Reverted,
		"warnings", len(result.Warnings))
	return exitOK
}

// findStore locates the journal store holding the package's install record,
// checking the per-user state directory before the per-machine one.
func findStore(env scope.Environment, packageID string) (*journal.Store, bool) {
	for _, dir := range []string{env.UserStateDir, env.MachineStateDir} {
		store := journal.NewStore(dir)
		if store.Exists(packageID) {
			return store, true
		}
	}
	return nil, false
}

// uninstallCommand is what the Add/Remove Programs entry invokes.
func uninstallCommand(packageID string) string {
	exe, err := os.Executable()
	if err != nil {
		exe = "appdeploy"
	}
	return fmt.Sprintf(`"%s" --uninstall %s`, exe, packageID)
}
