package scope

import (
	"testing"

	"github.com/weirworks/weir/codec"
)

func TestTransmittable_ChannelsExcluded(t *testing.T) {
	c := NewChannel(4)

	if Transmittable(c) {
		t.Error("expected channel to be non-transmittable")
	}
	if Transmittable(c.Reader()) {
		t.Error("expected read port to be non-transmittable")
	}
	if Transmittable(c.Writer()) {
		t.Error("expected write port to be non-transmittable")
	}
}

func TestChannelHandlesNotEncodable(t *testing.T) {
	c := NewChannel(1)

	if codec.Encodable(c) {
		t.Error("expected channel handle to refuse encoding")
	}
	if codec.Encodable(c.Reader()) {
		t.Error("expected read port to refuse encoding")
	}
	if codec.Encodable(c.Writer()) {
		t.Error("expected write port to refuse encoding")
	}
}

func TestTransmittable_FileRefIncluded(t *testing.T) {
	if !Transmittable(codec.FileRef{Path: "/staging/data.bin"}) {
		t.Error("expected file reference to be transmittable")
	}
}

func TestTransmittable_EncodableValues(t *testing.T) {
	if !Transmittable("text") {
		t.Error("expected string to be transmittable")
	}
	if !Transmittable(int64(9)) {
		t.Error("expected int64 to be transmittable")
	}
	if !Transmittable([]any{"a", int64(1)}) {
		t.Error("expected slice to be transmittable")
	}
	if Transmittable(func() {}) {
		t.Error("expected func to be non-transmittable")
	}
	if Transmittable(map[string]any{"inner": make(chan int)}) {
		t.Error("expected map nesting a raw channel to be non-transmittable")
	}
}
