// pkg/journal/journal.go - the durable record of applied operations.
//
// A journal is a JSON-lines file: one header line followed by one line per
// operation, appended and fsynced before the next operation starts. The file
// is the handoff artifact between install and uninstall; nothing else about
// the original manifest is needed to reverse an install.

package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/windowsadmins/appdeploy/pkg/operation"
)

// Outcome records how an operation ended.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ErrNotFound reports that no journal exists for a package id.
var ErrNotFound = errors.New("journal not found")

// ErrCorrupt reports a journal whose header or entries cannot be parsed.
var ErrCorrupt = errors.New("journal is corrupt")

// Header identifies the install session a journal belongs to.
type Header struct {
	PackageID  string `json:"package_id"`
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	SessionID  string `json:"session_id"`
	Scope      string `json:"scope"`
	Created    string `json:"created"`
}

// Entry is one journaled operation with its outcome.
type Entry struct {
	Seq     int                 `json:"seq"`
	Time    string              `json:"time"`
	Outcome Outcome             `json:"outcome"`
	Error   string              `json:"error,omitempty"`
	Op      operation.Operation `json:"op"`
}

// Journal is the in-memory form of a persisted journal.
type Journal struct {
	Header  Header
	Entries []Entry
}

// Applied returns the entries that actually mutated the host, in application
// order.
func (j *Journal) Applied() []Entry {
	out := make([]Entry, 0, len(j.Entries))
	for _, e := range j.Entries {
		if e.Outcome == OutcomeApplied {
			out = append(out, e)
		}
	}
	return out
}

// Writer appends entries to a journal file, syncing after every record so a
// crash between operations never loses an acknowledged entry.
type Writer struct {
	file *os.File
	next int
}

// NewWriter creates the journal file and durably writes its header.
func NewWriter(path string, header Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating journal %s: %w", path, err)
	}
	w := &Writer{file: f}
	if header.Created == "" {
		header.Created = time.Now().Format(time.RFC3339)
	}
	if err := w.writeLine(header); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// OpenAppend reopens an existing journal for appending, continuing sequence
// numbers from next. Used when resuming an interrupted install.
func OpenAppend(path string, next int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("reopening journal %s: %w", path, err)
	}
	return &Writer{file: f, next: next}, nil
}

// Append durably records one entry and returns its sequence number.
func (w *Writer) Append(op operation.Operation, outcome Outcome, opErr error) (int, error) {
	entry := Entry{
		Seq:     w.next,
		Time:    time.Now().Format(time.RFC3339),
		Outcome: outcome,
		Op:      op,
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	if err := w.writeLine(entry); err != nil {
		return 0, err
	}
	w.next++
	return entry.Seq, nil
}

func (w *Writer) writeLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending journal entry: %w", err)
	}
	// No entry counts as written until it is on disk.
	return w.file.Sync()
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Load reads a journal file back. A truncated trailing line (crash mid-write)
// is tolerated and dropped; a malformed header is not.
func Load(path string) (*Journal, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("%w: empty journal %s", ErrCorrupt, path)
	}
	j := &Journal{}
	if err := json.Unmarshal(scanner.Bytes(), &j.Header); err != nil || j.Header.PackageID == "" {
		return nil, fmt.Errorf("%w: bad header in %s", ErrCorrupt, path)
	}

	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// A partial final line means the process died between write and
			// sync; everything before it is still authoritative.
			break
		}
		j.Entries = append(j.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return j, nil
}
