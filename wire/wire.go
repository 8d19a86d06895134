// Package wire dehydrates task scopes into self-contained records for
// remote execution and rehydrates them on the receiving side.
//
// Record layout, in order: varint-length-prefixed scope name, one
// undefined-variable policy byte, then three successive CBOR items: the
// local entries, the environment kind, and the transmittable snapshot of
// external bindings. CBOR items are self-delimiting, so the record needs
// no framing beyond the name prefix.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/weirworks/weir/codec"
	"github.com/weirworks/weir/scope"
)

var (
	// ErrDecode is wrapped by all record parse failures. A record that
	// fails to decode yields no scope at all.
	ErrDecode = errors.New("wire: corrupt scope record")
	// ErrEnvironment is wrapped when the receiving side cannot
	// instantiate a fresh environment of the record's kind.
	ErrEnvironment = errors.New("wire: environment instantiation failed")
)

var log = commonlog.GetLogger("weir.wire")

// Dehydrate encodes a scope into a wire record. The scope itself is not
// modified. A local value the codec cannot encode fails the whole record.
func Dehydrate(m *scope.Map) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, m.Name())
	if m.DeferUndefined() {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	enc := codec.NewEncoder(&buf)
	if err := enc.Encode(m.Entries()); err != nil {
		return nil, fmt.Errorf("wire: encode local entries: %w", err)
	}
	kind := ""
	if env := m.Environment(); env != nil {
		kind = env.Kind()
	}
	if err := enc.Encode(kind); err != nil {
		return nil, fmt.Errorf("wire: encode environment kind: %w", err)
	}
	if err := enc.Encode(m.TransmittableBindings()); err != nil {
		return nil, fmt.Errorf("wire: encode external snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// rehydrateMu serializes all rehydration. The loader override below swaps
// the active registry for the duration of one call, so overlapping calls
// must never observe each other's registry.
var (
	rehydrateMu    sync.Mutex
	activeRegistry = scope.DefaultRegistry()
)

// Rehydrate decodes a wire record into a live scope. The record's
// environment kind is instantiated fresh through the active registry and
// the snapshot bindings are bound into it.
//
// A non-nil loader becomes the active registry for this call only; the
// previous registry is restored on every path. Calls serialize on a
// package mutex.
func Rehydrate(data []byte, loader *scope.Registry) (*scope.Map, error) {
	rehydrateMu.Lock()
	defer rehydrateMu.Unlock()

	prev := activeRegistry
	if loader != nil {
		activeRegistry = loader
	}
	defer func() { activeRegistry = prev }()

	return rehydrate(data, activeRegistry)
}

func rehydrate(data []byte, reg *scope.Registry) (*scope.Map, error) {
	name, off, err := readString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: scope name: %v", ErrDecode, err)
	}
	if off >= len(data) {
		return nil, fmt.Errorf("%w: missing policy byte", ErrDecode)
	}
	deferUndefined := data[off] != 0
	off++

	dec := codec.NewDecoder(bytes.NewReader(data[off:]))

	var local []scope.Entry
	if err := dec.Decode(&local); err != nil {
		return nil, fmt.Errorf("%w: local entries: %v", ErrDecode, err)
	}
	var kind string
	if err := dec.Decode(&kind); err != nil {
		return nil, fmt.Errorf("%w: environment kind: %v", ErrDecode, err)
	}
	var snapshot []scope.Entry
	if err := dec.Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("%w: external snapshot: %v", ErrDecode, err)
	}

	// An empty kind means the scope had no environment when dehydrated.
	var env scope.Environment
	if kind != "" {
		env, err = reg.New(kind)
		if err != nil {
			return nil, fmt.Errorf("%w: kind %q: %v", ErrEnvironment, kind, err)
		}
		for _, e := range snapshot {
			env.Bind(e.Name, e.Value)
		}
	}

	log.Debugf("rehydrated scope %q (kind %q, %d local, %d external)",
		name, kind, len(local), len(snapshot))
	return scope.NewFromRecord(name, env, deferUndefined, local), nil
}

// ---------------------------------------------------------------------------
// Binary header helpers
// 7-bit varint with high-bit continuation, then raw string bytes.
// ---------------------------------------------------------------------------

func writeVarInt(buf *bytes.Buffer, v uint64) {
	for v >= 0x80 {
		buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

func readVarInt(data []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(data); i++ {
		b := data[i]
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errors.New("truncated varint")
}

func writeString(buf *bytes.Buffer, s string) {
	writeVarInt(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(data []byte) (string, int, error) {
	length, n, err := readVarInt(data)
	if err != nil {
		return "", 0, err
	}
	end := n + int(length)
	if end < n || end > len(data) {
		return "", 0, errors.New("truncated string")
	}
	return string(data[n:end]), end, nil
}
