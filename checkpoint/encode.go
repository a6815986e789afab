package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unsafe"

	"github.com/hupe1980/isdgo/nn"
	"github.com/hupe1980/isdgo/queue"
)

// payloadWriter serializes the checkpoint payload. Float32 slices are
// written as raw little-endian bytes via an unsafe view; validity is
// guaranteed on the supported platforms (amd64/arm64, little-endian).
type payloadWriter struct {
	buf bytes.Buffer
}

func (w *payloadWriter) writeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:]) // nolint errcheck
}

func (w *payloadWriter) writeFloat32(v float32) {
	w.writeUint32(math.Float32bits(v))
}

func (w *payloadWriter) writeString(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("checkpoint: string of %d bytes exceeds limit", len(s))
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(s)))
	w.buf.Write(b[:])       // nolint errcheck
	w.buf.WriteString(s)    // nolint errcheck
	return nil
}

func (w *payloadWriter) writeFloat32Slice(vec []float32) error {
	if len(vec) > math.MaxUint32 {
		return fmt.Errorf("checkpoint: slice of %d values exceeds limit", len(vec))
	}
	w.writeUint32(uint32(len(vec)))
	if len(vec) == 0 {
		return nil
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4) // nolint gosec
	w.buf.Write(raw)                                                 // nolint errcheck
	return nil
}

func (w *payloadWriter) writeTensors(tensors []nn.NamedTensor) error {
	w.writeUint32(uint32(len(tensors)))
	for _, nt := range tensors {
		if err := w.writeString(nt.Name); err != nil {
			return err
		}
		if err := w.writeFloat32Slice(nt.Data); err != nil {
			return err
		}
	}
	return nil
}

func (w *payloadWriter) writeQueue(s queue.State) error {
	w.writeUint32(uint32(s.Capacity))
	w.writeUint32(uint32(s.Dim))
	w.writeUint32(uint32(s.Ptr))
	return w.writeFloat32Slice(s.Data)
}

// payloadReader is the strict counterpart of payloadWriter.
type payloadReader struct {
	r *bytes.Reader
}

func (r *payloadReader) readUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *payloadReader) readFloat32() (float32, error) {
	v, err := r.readUint32()
	return math.Float32frombits(v), err
}

func (r *payloadReader) readString() (string, error) {
	var b [2]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(b[:])
	s := make([]byte, n)
	if _, err := io.ReadFull(r.r, s); err != nil {
		return "", err
	}
	return string(s), nil
}

func (r *payloadReader) readFloat32Slice() ([]float32, error) {
	count, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	if int64(count)*4 > int64(r.r.Len()) {
		return nil, fmt.Errorf("checkpoint: slice of %d values exceeds remaining payload", count)
	}

	vec := make([]float32, count)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), int(count)*4) // nolint gosec
	if _, err := io.ReadFull(r.r, raw); err != nil {
		return nil, err
	}
	return vec, nil
}

func (r *payloadReader) readTensors() ([]nn.NamedTensor, error) {
	count, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		// An empty section was encoded from a nil slice; reproduce it.
		return nil, nil
	}

	tensors := make([]nn.NamedTensor, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		data, err := r.readFloat32Slice()
		if err != nil {
			return nil, err
		}
		tensors = append(tensors, nn.NamedTensor{Name: name, Data: data})
	}
	return tensors, nil
}

func (r *payloadReader) readQueue() (queue.State, error) {
	var s queue.State

	capacity, err := r.readUint32()
	if err != nil {
		return s, err
	}
	dim, err := r.readUint32()
	if err != nil {
		return s, err
	}
	ptr, err := r.readUint32()
	if err != nil {
		return s, err
	}
	data, err := r.readFloat32Slice()
	if err != nil {
		return s, err
	}

	s.Capacity = int(capacity)
	s.Dim = int(dim)
	s.Ptr = int(ptr)
	s.Data = data
	return s, nil
}
