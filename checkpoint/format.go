// Package checkpoint persists full training state snapshots in a compact
// binary format and manages the checkpoint directory, including optional
// mirroring to a remote blob store.
package checkpoint

import "errors"

const (
	// MagicNumber identifies checkpoint files (ASCII: "ISD1").
	MagicNumber = 0x49534431

	// Version is the current file format version (v1.0.0).
	Version = 0x00010000
)

// Compression selects the payload codec.
type Compression uint8

const (
	// CompressionNone stores the payload raw.
	CompressionNone Compression = 0

	// CompressionLZ4 favors speed over ratio.
	CompressionLZ4 Compression = 1

	// CompressionZSTD favors ratio over speed.
	CompressionZSTD Compression = 2
)

var (
	ErrInvalidMagic       = errors.New("checkpoint: invalid magic number")
	ErrInvalidVersion     = errors.New("checkpoint: unsupported version")
	ErrInvalidCompression = errors.New("checkpoint: unknown compression")
	ErrChecksumMismatch   = errors.New("checkpoint: checksum mismatch")
	ErrNoCheckpoint       = errors.New("checkpoint: no checkpoint found")
)

// fileHeader is the fixed-size header at the start of every checkpoint file.
type fileHeader struct {
	Magic       uint32
	Version     uint32
	Compression uint8
	Padding     [3]byte
	PayloadSize uint64 // compressed payload bytes
	Checksum    uint32 // CRC32 (IEEE) of the compressed payload
	Reserved    [12]byte
}

// ParseCompression maps a config string to a Compression value.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, ErrInvalidCompression
	}
}
