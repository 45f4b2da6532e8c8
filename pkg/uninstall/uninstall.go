// pkg/uninstall/uninstall.go - the uninstall executor.
//
// Uninstall consumes only the persisted journal: it never re-derives the
// original manifest. Entries are reversed strictly backwards from the order
// they were applied, and per-entry failures accumulate as warnings instead of
// aborting the run. Uninstall favors maximal cleanup, the inverse policy of
// install.

package uninstall

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/windowsadmins/appdeploy/pkg/journal"
	"github.com/windowsadmins/appdeploy/pkg/logging"
	"github.com/windowsadmins/appdeploy/pkg/operation"
	"github.com/windowsadmins/appdeploy/pkg/retry"
	"github.com/windowsadmins/appdeploy/pkg/system"
	"github.com/windowsadmins/appdeploy/pkg/transaction"
)

// Warning is one journal entry that could not be reverted and was left in
// place.
type Warning struct {
	Seq         int
	Description string
	Reason      string
}

// Result summarizes a completed uninstall run.
type Result struct {
	PackageID      string
	Reverted       int
	Warnings       []Warning
	JournalRemoved bool
}

// Executor reverses persisted install journals.
type Executor struct {
	sys   system.System
	store *journal.Store
	retry retry.RetryConfig
}

// NewExecutor returns an Executor operating through sys.
func NewExecutor(sys system.System, store *journal.Store) *Executor {
	return &Executor{sys: sys, store: store, retry: retry.DefaultConfig()}
}

// SetRetryConfig overrides the file-in-use retry policy.
func (e *Executor) SetRetryConfig(cfg retry.RetryConfig) { e.retry = cfg }

// Uninstall loads the journal for packageID and reverses every applied entry.
// A missing or corrupt journal is fatal (wrapping journal.ErrNotFound or
// journal.ErrCorrupt); anything after that is accumulated, not fatal.
func (e *Executor) Uninstall(packageID string) (*Result, error) {
	release, err := transaction.AcquireSessionLock(e.store, packageID, uuid.NewString())
	if err != nil {
		return nil, err
	}
	defer release()

	j, err := e.store.Load(packageID)
	if err != nil {
		return nil, err
	}

	applied := j.Applied()
	logging.Info("Starting uninstall",
		"package", packageID, "version", j.Header.AppVersion, "entries", len(applied))

	result := &Result{PackageID: packageID}
	for i := len(applied) - 1; i >= 0; i-- {
		entry := applied[i]
		if err := e.invertWithRetry(&entry.Op); err != nil {
			reason := err.Error()
			switch {
			case errors.Is(err, operation.ErrModifiedSinceInstall):
				logging.Warn("File changed since install, leaving in place",
					"op", entry.Op.Describe())
			case errors.Is(err, operation.ErrNotOwned):
				logging.Warn("State no longer owned by this package, leaving in place",
					"op", entry.Op.Describe())
			default:
				logging.Warn("Could not revert entry, continuing",
					"op", entry.Op.Describe(), "error", err)
			}
			result.Warnings = append(result.Warnings, Warning{
				Seq:         entry.Seq,
				Description: entry.Op.Describe(),
				Reason:      reason,
			})
			continue
		}
		result.Reverted++
	}

	// The journal is kept while anything it records is still on the host, so
	// a later run can finish the cleanup.
	if len(result.Warnings) == 0 {
		if err := e.store.Remove(packageID); err != nil {
			return result, fmt.Errorf("removing journal for %s: %w", packageID, err)
		}
		result.JournalRemoved = true
	}

	logging.Info("Uninstall finished",
		"package", packageID, "reverted", result.Reverted, "warnings", len(result.Warnings))
	return result, nil
}

func (e *Executor) invertWithRetry(op *operation.Operation) error {
	return retry.Retry(e.retry, func() error {
		err := op.Invert(e.sys)
		if err != nil && !errors.Is(err, operation.ErrFileInUse) {
			return &retry.Permanent{Err: err}
		}
		return err
	})
}
