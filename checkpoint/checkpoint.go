package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hupe1980/isdgo"
	"github.com/hupe1980/isdgo/optim"
)

// TrainingState is a full snapshot of a run: the model (both encoders, the
// projection head and the memory bank), the optimizer and the last completed
// epoch. Resuming from it reproduces the run as if it never stopped.
type TrainingState struct {
	Epoch int
	Model isdgo.ModelState
	Optim optim.State
}

// Encode writes the snapshot to w: a fixed header followed by the
// (optionally compressed) payload. The header carries a CRC32 of the payload
// so corruption is detected before any state is restored.
func Encode(w io.Writer, state *TrainingState, compression Compression) error {
	var pw payloadWriter

	pw.writeUint32(uint32(state.Epoch))

	if err := pw.writeString(state.Model.Arch); err != nil {
		return err
	}
	pw.writeUint32(uint32(state.Model.InDim))
	if err := pw.writeTensors(state.Model.Tensors); err != nil {
		return err
	}
	if err := pw.writeQueue(state.Model.Queue); err != nil {
		return err
	}

	pw.writeFloat32(state.Optim.LR)
	if err := pw.writeTensors(state.Optim.Buffers); err != nil {
		return err
	}

	payload, err := compress(pw.buf.Bytes(), compression)
	if err != nil {
		return err
	}

	header := fileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: uint8(compression),
		PayloadSize: uint64(len(payload)),
		Checksum:    crc32.ChecksumIEEE(payload),
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}

	_, err = w.Write(payload)
	return err
}

// Decode reads a snapshot written by Encode. Decoding is strict: magic,
// version, checksum and payload shape must all match.
func Decode(r io.Reader) (*TrainingState, error) {
	var header fileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}

	payload := make([]byte, header.PayloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(payload) != header.Checksum {
		return nil, ErrChecksumMismatch
	}

	raw, err := decompress(payload, Compression(header.Compression))
	if err != nil {
		return nil, err
	}

	pr := payloadReader{r: bytes.NewReader(raw)}
	state := &TrainingState{}

	epoch, err := pr.readUint32()
	if err != nil {
		return nil, err
	}
	state.Epoch = int(epoch)

	if state.Model.Arch, err = pr.readString(); err != nil {
		return nil, err
	}
	inDim, err := pr.readUint32()
	if err != nil {
		return nil, err
	}
	state.Model.InDim = int(inDim)

	if state.Model.Tensors, err = pr.readTensors(); err != nil {
		return nil, err
	}
	if state.Model.Queue, err = pr.readQueue(); err != nil {
		return nil, err
	}

	if state.Optim.LR, err = pr.readFloat32(); err != nil {
		return nil, err
	}
	if state.Optim.Buffers, err = pr.readTensors(); err != nil {
		return nil, err
	}

	return state, nil
}
