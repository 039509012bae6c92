// Package pixel implements the tile assembler: a pure, stateless transform from
// the raw byte buffers a remote pixel store returns into decoded sample planes.
//
// A remote store hands back bytes in whatever numeric type, byte order, and
// spatial layout the image was acquired with. Decoding normalizes all of them
// into row-major float64 planes, one per channel. float64 represents every
// supported sample type exactly (the widest integer type is 32 bits), so the
// transform is lossless and round-trippable.
package pixel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type is the numeric sample type declared by the remote store.
type Type byte

const (
	Uint8 Type = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

// ErrUnsupportedType is returned for a Type outside the declared set.
// An unsupported type is a configuration error, fatal and never retried.
var ErrUnsupportedType = errors.New("pixel: unsupported sample type")

// ErrShortBuffer is returned when a raw buffer holds fewer bytes than the
// declared geometry requires.
var ErrShortBuffer = errors.New("pixel: buffer too short for declared geometry")

// Size returns the sample width in bytes, or 0 for an unsupported type.
func (t Type) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (t Type) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("pixel.Type(%d)", byte(t))
}

// ParseType maps the store's textual pixel-type declaration to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "uint8":
		return Uint8, nil
	case "int8":
		return Int8, nil
	case "uint16":
		return Uint16, nil
	case "int16":
		return Int16, nil
	case "uint32":
		return Uint32, nil
	case "int32":
		return Int32, nil
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

// Order is the byte order of multi-byte samples.
type Order byte

const (
	BigEndian    Order = 0 // network order, the common default for remote stores
	LittleEndian Order = 1
)

func (o Order) String() string {
	if o == LittleEndian {
		return "little-endian"
	}
	return "big-endian"
}

// byteOrder returns the encoding/binary implementation for this Order.
func (o Order) byteOrder() binary.ByteOrder {
	if o == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Layout describes how channels are arranged in the raw buffers.
type Layout byte

const (
	// Separated: one buffer per channel, each a full w*h plane.
	Separated Layout = iota
	// Planar: a single buffer with the channel planes back to back.
	Planar
	// Interleaved: a single buffer with samples channel-interleaved,
	// i.e. sample i of channel c sits at index i*channels+c.
	Interleaved
)

func (l Layout) String() string {
	switch l {
	case Separated:
		return "separated"
	case Planar:
		return "planar"
	case Interleaved:
		return "interleaved"
	}
	return fmt.Sprintf("pixel.Layout(%d)", byte(l))
}

// Format bundles everything needed to interpret raw tile bytes.
type Format struct {
	Type   Type
	Order  Order
	Layout Layout
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%s/%s", f.Type, f.Order, f.Layout)
}
