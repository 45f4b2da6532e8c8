// pkg/transaction/manager.go - the install transaction core.
//
// Apply executes a resolved operation list under a per-package session lock,
// journaling every outcome durably before moving on. A mid-run failure
// triggers rollback of everything applied so far, in reverse order; rollback
// is best-effort and surfaces whatever it could not revert.

package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/windowsadmins/appdeploy/pkg/journal"
	"github.com/windowsadmins/appdeploy/pkg/logging"
	"github.com/windowsadmins/appdeploy/pkg/manifest"
	"github.com/windowsadmins/appdeploy/pkg/operation"
	"github.com/windowsadmins/appdeploy/pkg/retry"
	"github.com/windowsadmins/appdeploy/pkg/scope"
	"github.com/windowsadmins/appdeploy/pkg/system"
)

// Manager executes install transactions against a System handle.
type Manager struct {
	sys     system.System
	store   *journal.Store
	retry   retry.RetryConfig
	session string
}

// NewManager returns a Manager journaling into store.
func NewManager(sys system.System, store *journal.Store) *Manager {
	return &Manager{
		sys:     sys,
		store:   store,
		retry:   retry.DefaultConfig(),
		session: uuid.NewString(),
	}
}

// SessionID identifies this manager's install session in locks and journals.
func (m *Manager) SessionID() string { return m.session }

// SetRetryConfig overrides the file-in-use retry policy.
func (m *Manager) SetRetryConfig(cfg retry.RetryConfig) { m.retry = cfg }

type lockInfo struct {
	SessionID string `json:"session_id"`
	PID       int    `json:"pid"`
}

// AcquireSessionLock takes the per-package session lock shared by install and
// uninstall sessions. A lock left behind by a dead process is broken; a live
// holder raises ConcurrentSessionError.
func AcquireSessionLock(store *journal.Store, packageID, sessionID string) (func(), error) {
	path := store.LockPath(packageID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			data, _ := json.Marshal(lockInfo{SessionID: sessionID, PID: os.Getpid()})
			f.Write(append(data, '\n'))
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating session lock: %w", err)
		}

		holder := readLockHolder(path)
		if holder.PID > 0 {
			if alive, err := process.PidExists(int32(holder.PID)); err == nil && !alive {
				logging.Warn("Breaking stale session lock", "package", packageID, "pid", holder.PID)
				os.Remove(path)
				continue
			}
		}
		return nil, &ConcurrentSessionError{PackageID: packageID, Holder: holder.SessionID}
	}
	return nil, &ConcurrentSessionError{PackageID: packageID}
}

func readLockHolder(path string) lockInfo {
	var info lockInfo
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &info)
	}
	return info
}

// Apply executes the resolved operations for the manifest under res. On full
// success it returns the persisted journal, which is the uninstall record.
func (m *Manager) Apply(man *manifest.PackageManifest, ops []operation.Operation, res scope.Resolution) (*journal.Journal, error) {
	bounds := operation.Bounds{
		AppRoot:      res.AppRoot,
		ShortcutDirs: []string{res.DesktopDir, res.StartMenuDir},
		Hive:         res.Hive,
		RegistrySubtrees: []string{
			res.ClassesRoot + `\` + man.AssociationExtension,
			res.ClassesRoot + `\` + man.ProgramID,
			res.UninstallRoot + `\` + man.PackageID,
		},
	}
	// Scope containment is absolute: validate the whole list before touching
	// anything.
	for _, op := range ops {
		if err := op.CheckBounds(bounds); err != nil {
			return nil, &ScopeViolationError{Op: op.Describe(), Err: err}
		}
	}

	release, err := AcquireSessionLock(m.store, man.PackageID, m.session)
	if err != nil {
		return nil, err
	}
	defer release()

	writer, applied, start, err := m.openJournal(man, res)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	backupDir := m.store.BackupDir(man.PackageID)
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	logging.Info("Starting install transaction",
		"package", man.PackageID, "version", man.AppVersion,
		"scope", string(res.Scope), "operations", len(ops), "resume_at", start)

	for i := start; i < len(ops); i++ {
		op := ops[i]
		backupPath := filepath.Join(backupDir, fmt.Sprintf("%04d.bak", i))

		didApply, opErr := m.applyWithRetry(&op, backupPath)
		if opErr != nil {
			logging.Error("Operation failed, rolling back", "op", op.Describe(), "error", opErr)
			// Journal the failure best-effort; the failed op changed nothing.
			writer.Append(op, journal.OutcomeFailed, opErr)
			residual := m.rollback(applied)
			if len(residual) > 0 {
				return nil, &PartialRollbackError{FailedSeq: i, Op: op.Describe(), Err: opErr, Residual: residual}
			}
			return nil, &TransactionError{FailedSeq: i, Op: op.Describe(), Err: opErr}
		}

		outcome := journal.OutcomeApplied
		if !didApply {
			outcome = journal.OutcomeSkipped
			logging.Debug("Operation already satisfied, skipped", "op", op.Describe())
		}
		seq, err := writer.Append(op, outcome, nil)
		if err != nil {
			// The mutation happened but is not durably recorded; include it in
			// the rollback so the host is not left with an unjournaled change.
			if didApply {
				applied = append(applied, journal.Entry{Seq: i, Outcome: journal.OutcomeApplied, Op: op})
			}
			residual := m.rollback(applied)
			if len(residual) > 0 {
				return nil, &PartialRollbackError{FailedSeq: i, Op: op.Describe(), Err: err, Residual: residual}
			}
			return nil, &TransactionError{FailedSeq: i, Op: op.Describe(), Err: err}
		}
		if didApply {
			applied = append(applied, journal.Entry{Seq: seq, Outcome: journal.OutcomeApplied, Op: op})
		}
	}

	logging.Info("Install transaction committed", "package", man.PackageID, "applied", len(applied))
	return m.store.Load(man.PackageID)
}

// openJournal creates a fresh journal, or reopens an interrupted one from the
// same package version so already-applied operations are resumed, not redone.
func (m *Manager) openJournal(man *manifest.PackageManifest, res scope.Resolution) (*journal.Writer, []journal.Entry, int, error) {
	if m.store.Exists(man.PackageID) {
		prior, err := m.store.Load(man.PackageID)
		if err == nil && prior.Header.PackageID == man.PackageID &&
			prior.Header.AppVersion == man.AppVersion && cleanJournal(prior) {
			w, err := journal.OpenAppend(m.store.Path(man.PackageID), len(prior.Entries))
			if err != nil {
				return nil, nil, 0, err
			}
			logging.Info("Resuming interrupted install journal",
				"package", man.PackageID, "settled_entries", len(prior.Entries))
			return w, prior.Applied(), len(prior.Entries), nil
		}
	}

	header := journal.Header{
		PackageID:  man.PackageID,
		AppName:    man.AppName,
		AppVersion: man.AppVersion,
		SessionID:  m.session,
		Scope:      string(res.Scope),
	}
	w, err := m.store.Create(man.PackageID, header)
	if err != nil {
		return nil, nil, 0, err
	}
	return w, nil, 0, nil
}

// cleanJournal reports whether every entry settled as applied or skipped; a
// journal containing a failed entry belongs to a rolled-back run and is not
// resumed.
func cleanJournal(j *journal.Journal) bool {
	for _, e := range j.Entries {
		if e.Outcome == journal.OutcomeFailed {
			return false
		}
	}
	return true
}

// applyWithRetry runs the operation, retrying only transient file-in-use
// contention.
func (m *Manager) applyWithRetry(op *operation.Operation, backupPath string) (bool, error) {
	var didApply bool
	err := retry.Retry(m.retry, func() error {
		applied, err := op.Apply(m.sys, backupPath)
		if err != nil {
			if errors.Is(err, operation.ErrFileInUse) {
				return err
			}
			return &retry.Permanent{Err: err}
		}
		didApply = applied
		return nil
	})
	if err != nil {
		return false, err
	}
	return didApply, nil
}

// rollback inverts the applied entries in reverse order. Inversion failures
// are recorded and reversal continues; the returned residual list is empty
// when rollback restored the pre-transaction state completely.
func (m *Manager) rollback(applied []journal.Entry) []ResidualMutation {
	var residual []ResidualMutation
	for i := len(applied) - 1; i >= 0; i-- {
		entry := applied[i]
		if err := entry.Op.Invert(m.sys); err != nil {
			logging.Warn("Rollback step failed, continuing",
				"op", entry.Op.Describe(), "error", err)
			residual = append(residual, ResidualMutation{
				Seq:         entry.Seq,
				Description: entry.Op.Describe(),
				Reason:      err.Error(),
			})
			continue
		}
		logging.Debug("Rolled back", "op", entry.Op.Describe())
	}
	return residual
}
