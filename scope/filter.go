package scope

import (
	"github.com/weirworks/weir/codec"
)

// Transmittable reports whether a value may cross a process boundary in a
// wire record. The predicate is pure over the value's type and contents:
// live channel handles are excluded, path-like file references are included,
// and everything else is included iff the codec can encode it.
func Transmittable(v any) bool {
	if IsChannelValue(v) {
		return false
	}
	if _, ok := v.(codec.FileRef); ok {
		return true
	}
	return codec.Encodable(v)
}
