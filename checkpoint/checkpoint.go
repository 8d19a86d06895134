// Package checkpoint persists a scope's local bindings to disk so an
// interrupted pipeline can resume a task attempt where it stopped.
//
// Writing and reading are asymmetric on purpose. A checkpoint that cannot
// be written must never abort the attempt it would have protected, so
// SaveBestEffort logs the failure with a full scope dump and continues.
// A checkpoint that cannot be decoded is corrupt and the error propagates.
package checkpoint

import (
	"errors"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/weirworks/weir/codec"
	"github.com/weirworks/weir/scope"
)

var (
	// ErrWrite is wrapped by Save failures.
	ErrWrite = errors.New("checkpoint: write failed")
	// ErrCorrupt is wrapped by Read failures.
	ErrCorrupt = errors.New("checkpoint: corrupt data")
)

var log = commonlog.GetLogger("weir.checkpoint")

// Save encodes the scope's local entries and writes them to path. The
// file carries no header; the entries are one codec item.
func Save(m *scope.Map, path string) error {
	data, err := codec.Marshal(m.Entries())
	if err != nil {
		return fmt.Errorf("%w: encode scope %q: %v", ErrWrite, m.Name(), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// SaveBestEffort writes a checkpoint if it can. On failure it logs the
// error together with a dump of the scope and returns; the attempt goes
// on without a checkpoint.
func SaveBestEffort(m *scope.Map, path string) {
	if err := Save(m, path); err != nil {
		log.Errorf("checkpoint %q not written: %v\n%s", path, err, m.Dump())
	}
}

// Read decodes a checkpoint into a live scope. The file only holds the
// entries, so the scope's name, policy, and a fresh environment come from
// the processor context.
func Read(path string, pc scope.ProcessorContext) (*scope.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var entries []scope.Entry
	if err := codec.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	env, err := pc.NewEnvironment()
	if err != nil {
		return nil, fmt.Errorf("checkpoint: environment for %q: %w", pc.ScopeName(), err)
	}
	return scope.NewFromRecord(pc.ScopeName(), env, pc.DeferUndefined(), entries), nil
}
