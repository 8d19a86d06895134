// Package codec is the generic value codec for scope serialization.
// Values cross checkpoint and wire boundaries as CBOR: canonical
// encoding for deterministic output, with a tag set so reference types
// like FileRef survive a round trip through interface{} on the far side.
package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// fileRefTag is the CBOR tag number registered for FileRef values.
// Chosen from the unassigned application range; both sides of a wire
// exchange must agree on it, which the shared tag set guarantees.
const fileRefTag = 6000

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	tags := cbor.NewTagSet()
	err := tags.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(FileRef{}),
		fileRefTag,
	)
	if err != nil {
		panic(fmt.Sprintf("codec: failed to register FileRef tag: %v", err))
	}

	em, err := cbor.CanonicalEncOptions().EncModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	// Integers normalize to int64 and maps to map[string]any on decode,
	// so round-tripped scopes compare with reflect.DeepEqual.
	dm, err := cbor.DecOptions{
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// FileRef is a path-like reference to a file staged for a task. Unlike
// live handles it is transmittable: the path is meaningful on any node
// that shares the staging area.
type FileRef struct {
	Path string `cbor:"1,keyasint"`
}

func (f FileRef) String() string {
	return f.Path
}

// Marshal encodes a value to canonical CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into the given destination.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns an encoder that writes successive CBOR items to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a decoder that reads successive CBOR items from r.
// CBOR items are self-delimiting, so fields written in sequence decode
// in the same sequence with no extra framing.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// Encodable reports whether the codec can encode the value. It is a
// pure predicate over the value's type and contents: channels, funcs,
// and anything nesting them are not encodable. Used by the binding
// filter to drop non-transmittable values before a wire snapshot.
func Encodable(v any) bool {
	_, err := encMode.Marshal(v)
	return err == nil
}
