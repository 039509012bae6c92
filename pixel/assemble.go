package pixel

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodePlanes decodes the raw buffers returned by a remote pixel store into
// one float64 plane per channel, each w*h samples in row-major order.
//
// The number of buffers must match the layout: Separated expects one buffer
// per channel, Planar and Interleaved expect exactly one. Decoding is pure —
// no state is carried between calls, and the input buffers are not modified.
func DecodePlanes(bufs [][]byte, f Format, w, h, channels int) ([][]float64, error) {
	if f.Type.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, f.Type)
	}
	if w <= 0 || h <= 0 || channels <= 0 {
		return nil, fmt.Errorf("pixel: invalid geometry %dx%d x%d channels", w, h, channels)
	}

	n := w * h
	switch f.Layout {
	case Separated:
		if len(bufs) != channels {
			return nil, fmt.Errorf("pixel: separated layout wants %d buffers, got %d", channels, len(bufs))
		}
		planes := make([][]float64, channels)
		for c, buf := range bufs {
			plane, err := decodeSamples(buf, f.Type, f.Order, n)
			if err != nil {
				return nil, fmt.Errorf("channel %d: %w", c, err)
			}
			planes[c] = plane
		}
		return planes, nil

	case Planar:
		if len(bufs) != 1 {
			return nil, fmt.Errorf("pixel: planar layout wants 1 buffer, got %d", len(bufs))
		}
		// One run of the decoder, then split the planes apart.
		all, err := decodeSamples(bufs[0], f.Type, f.Order, n*channels)
		if err != nil {
			return nil, err
		}
		planes := make([][]float64, channels)
		for c := range planes {
			planes[c] = all[c*n : (c+1)*n : (c+1)*n]
		}
		return planes, nil

	case Interleaved:
		if len(bufs) != 1 {
			return nil, fmt.Errorf("pixel: interleaved layout wants 1 buffer, got %d", len(bufs))
		}
		all, err := decodeSamples(bufs[0], f.Type, f.Order, n*channels)
		if err != nil {
			return nil, err
		}
		// De-interleave: sample i of channel c is at all[i*channels+c].
		planes := make([][]float64, channels)
		for c := range planes {
			plane := make([]float64, n)
			for i := 0; i < n; i++ {
				plane[i] = all[i*channels+c]
			}
			planes[c] = plane
		}
		return planes, nil
	}
	return nil, fmt.Errorf("pixel: unknown layout %s", f.Layout)
}

// decodeSamples reads exactly n samples of type t from buf.
func decodeSamples(buf []byte, t Type, o Order, n int) ([]float64, error) {
	size := t.Size()
	if len(buf) < n*size {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(buf), n*size)
	}
	ord := o.byteOrder()
	out := make([]float64, n)
	switch t {
	case Uint8:
		for i := 0; i < n; i++ {
			out[i] = float64(buf[i])
		}
	case Int8:
		for i := 0; i < n; i++ {
			out[i] = float64(int8(buf[i]))
		}
	case Uint16:
		for i := 0; i < n; i++ {
			out[i] = float64(ord.Uint16(buf[i*2:]))
		}
	case Int16:
		for i := 0; i < n; i++ {
			out[i] = float64(int16(ord.Uint16(buf[i*2:])))
		}
	case Uint32:
		for i := 0; i < n; i++ {
			out[i] = float64(ord.Uint32(buf[i*4:]))
		}
	case Int32:
		for i := 0; i < n; i++ {
			out[i] = float64(int32(ord.Uint32(buf[i*4:])))
		}
	case Float32:
		for i := 0; i < n; i++ {
			out[i] = float64(math.Float32frombits(ord.Uint32(buf[i*4:])))
		}
	case Float64:
		for i := 0; i < n; i++ {
			out[i] = math.Float64frombits(ord.Uint64(buf[i*8:]))
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return out, nil
}

// EncodePlane is the inverse of decoding a single Separated plane: it writes
// the samples as type t in byte order o. Used by the simulated gateway and by
// round-trip tests; values are assumed to be representable in t.
func EncodePlane(samples []float64, t Type, o Order) ([]byte, error) {
	size := t.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	ord := o.byteOrder()
	buf := make([]byte, len(samples)*size)
	for i, v := range samples {
		putSample(buf[i*size:], v, t, ord)
	}
	return buf, nil
}

// EncodePlanes lays out per-channel planes in the declared layout, producing
// the buffer set DecodePlanes expects. All planes must have equal length.
func EncodePlanes(planes [][]float64, f Format) ([][]byte, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("pixel: no planes to encode")
	}
	n := len(planes[0])
	for c, p := range planes {
		if len(p) != n {
			return nil, fmt.Errorf("pixel: plane %d has %d samples, plane 0 has %d", c, len(p), n)
		}
	}

	switch f.Layout {
	case Separated:
		bufs := make([][]byte, len(planes))
		for c, p := range planes {
			b, err := EncodePlane(p, f.Type, f.Order)
			if err != nil {
				return nil, err
			}
			bufs[c] = b
		}
		return bufs, nil

	case Planar:
		all := make([]float64, 0, n*len(planes))
		for _, p := range planes {
			all = append(all, p...)
		}
		b, err := EncodePlane(all, f.Type, f.Order)
		if err != nil {
			return nil, err
		}
		return [][]byte{b}, nil

	case Interleaved:
		all := make([]float64, n*len(planes))
		for c, p := range planes {
			for i, v := range p {
				all[i*len(planes)+c] = v
			}
		}
		b, err := EncodePlane(all, f.Type, f.Order)
		if err != nil {
			return nil, err
		}
		return [][]byte{b}, nil
	}
	return nil, fmt.Errorf("pixel: unknown layout %s", f.Layout)
}

func putSample(buf []byte, v float64, t Type, ord binary.ByteOrder) {
	switch t {
	case Uint8:
		buf[0] = byte(uint8(v))
	case Int8:
		buf[0] = byte(int8(v))
	case Uint16:
		ord.PutUint16(buf, uint16(v))
	case Int16:
		ord.PutUint16(buf, uint16(int16(v)))
	case Uint32:
		ord.PutUint32(buf, uint32(v))
	case Int32:
		ord.PutUint32(buf, uint32(int32(v)))
	case Float32:
		ord.PutUint32(buf, math.Float32bits(float32(v)))
	case Float64:
		ord.PutUint64(buf, math.Float64bits(v))
	}
}
