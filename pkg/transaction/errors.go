// pkg/transaction/errors.go - the failure taxonomy of the transaction core.

package transaction

import (
	"fmt"
	"strings"
)

// ConcurrentSessionError reports that another session holds the package's
// install lock. Retryable by the caller after a delay.
type ConcurrentSessionError struct {
	PackageID string
	Holder    string
}

func (e *ConcurrentSessionError) Error() string {
	return fmt.Sprintf("another session (%s) is already operating on package %s", e.Holder, e.PackageID)
}

// TransactionError reports a mutation failure mid-run. Rollback of prior
// applied operations completed in full.
type TransactionError struct {
	FailedSeq int
	Op        string
	Err       error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("operation %d (%s) failed: %v; all prior operations rolled back", e.FailedSeq, e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ResidualMutation is one applied operation rollback could not revert.
type ResidualMutation struct {
	Seq         int
	Description string
	Reason      string
}

// PartialRollbackError is the most severe failure: the transaction failed and
// some applied operations remain in place. The residual list is the exact
// set of mutations the user must be shown.
type PartialRollbackError struct {
	FailedSeq int
	Op        string
	Err       error
	Residual  []ResidualMutation
}

func (e *PartialRollbackError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "operation %d (%s) failed: %v; %d mutation(s) could not be reverted:",
		e.FailedSeq, e.Op, e.Err, len(e.Residual))
	for _, r := range e.Residual {
		fmt.Fprintf(&b, "\n  [%d] %s: %s", r.Seq, r.Description, r.Reason)
	}
	return b.String()
}

func (e *PartialRollbackError) Unwrap() error { return e.Err }

// ScopeViolationError reports an operation whose target escapes the resolved
// install root or registry subtree. It is raised before any mutation.
type ScopeViolationError struct {
	Op  string
	Err error
}

func (e *ScopeViolationError) Error() string {
	return fmt.Sprintf("scope containment violation in %s: %v", e.Op, e.Err)
}

func (e *ScopeViolationError) Unwrap() error { return e.Err }
