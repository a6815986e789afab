package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hupe1980/isdgo/internal/mmap"
)

// CIFAR-10 binary batch geometry: each record is one label byte followed by
// 3072 channel-major pixel bytes (32x32 RGB).
const (
	cifarChannels    = 3
	cifarSide        = 32
	cifarPixelBytes  = cifarChannels * cifarSide * cifarSide
	cifarRecordBytes = 1 + cifarPixelBytes
)

// CIFAR10 reads the CIFAR-10 binary training batches through memory-mapped
// files, so samples are served without copying pixel data.
type CIFAR10 struct {
	files []*mmap.File
	// starts[i] is the global index of the first record in files[i];
	// starts[len(files)] is the total sample count.
	starts []int
}

// OpenCIFAR10 maps every data_batch_*.bin file under dir. The files are
// ordered by name, so global sample indices are stable across runs.
func OpenCIFAR10(dir string) (*CIFAR10, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "data_batch_*.bin"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoData, dir)
	}

	sort.Strings(paths)

	ds := &CIFAR10{starts: []int{0}}
	for _, path := range paths {
		f, err := mmap.Open(path)
		if err != nil {
			ds.Close()
			return nil, err
		}
		if len(f.Data)%cifarRecordBytes != 0 {
			f.Close()
			ds.Close()
			return nil, fmt.Errorf("dataset: %s size %d is not a multiple of record size %d",
				filepath.Base(path), len(f.Data), cifarRecordBytes)
		}

		ds.files = append(ds.files, f)
		ds.starts = append(ds.starts, ds.starts[len(ds.starts)-1]+len(f.Data)/cifarRecordBytes)
	}

	return ds, nil
}

// Len returns the total number of samples across all batch files.
func (ds *CIFAR10) Len() int { return ds.starts[len(ds.starts)-1] }

// At returns sample i. The pixel slice aliases the mapped file.
func (ds *CIFAR10) At(i int) (Sample, error) {
	if i < 0 || i >= ds.Len() {
		return Sample{}, &ErrIndexOutOfRange{Index: i, Len: ds.Len()}
	}

	// Locate the file holding record i.
	fi := sort.Search(len(ds.files), func(j int) bool { return ds.starts[j+1] > i })
	off := (i - ds.starts[fi]) * cifarRecordBytes
	rec := ds.files[fi].Data[off : off+cifarRecordBytes]

	return Sample{Raw: rec[1:], Label: int(rec[0])}, nil
}

func (ds *CIFAR10) Channels() int { return cifarChannels }
func (ds *CIFAR10) Height() int   { return cifarSide }
func (ds *CIFAR10) Width() int    { return cifarSide }

// Close unmaps all batch files.
func (ds *CIFAR10) Close() error {
	var firstErr error
	for _, f := range ds.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ds.files = nil
	return firstErr
}

// WriteCIFAR10Batch writes samples to path in the CIFAR-10 binary batch
// layout. Mainly useful for building test fixtures.
func WriteCIFAR10Batch(path string, samples []Sample) error {
	buf := make([]byte, 0, len(samples)*cifarRecordBytes)
	for _, s := range samples {
		if len(s.Raw) != cifarPixelBytes {
			return fmt.Errorf("dataset: sample has %d pixel bytes, want %d", len(s.Raw), cifarPixelBytes)
		}
		buf = append(buf, byte(s.Label))
		buf = append(buf, s.Raw...)
	}
	return os.WriteFile(path, buf, 0o600)
}
