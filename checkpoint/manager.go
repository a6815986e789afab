package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hupe1980/isdgo/blobstore"
	"github.com/hupe1980/isdgo/resource"
)

const filePattern = "ckpt_epoch_%d.ckpt"

// Manager owns a checkpoint directory: it writes epoch snapshots atomically,
// prunes old ones, and optionally mirrors each snapshot to a remote blob
// store throttled by a resource controller.
type Manager struct {
	dir         string
	compression Compression
	keep        int

	mirror blobstore.Store
	ctrl   *resource.Controller
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCompression selects the payload codec for new checkpoints.
func WithCompression(c Compression) ManagerOption {
	return func(m *Manager) { m.compression = c }
}

// WithKeep limits how many checkpoints are retained locally; older ones are
// pruned after each save. Zero keeps everything.
func WithKeep(n int) ManagerOption {
	return func(m *Manager) { m.keep = n }
}

// WithMirror uploads every checkpoint to the store after the local write.
// ctrl may be nil for unthrottled uploads.
func WithMirror(store blobstore.Store, ctrl *resource.Controller) ManagerOption {
	return func(m *Manager) {
		m.mirror = store
		m.ctrl = ctrl
	}
}

// NewManager creates a manager over dir, creating the directory if needed.
func NewManager(dir string, optFns ...ManagerOption) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	m := &Manager{dir: dir}
	for _, fn := range optFns {
		if fn != nil {
			fn(m)
		}
	}
	return m, nil
}

// Path returns the checkpoint filename for an epoch.
func (m *Manager) Path(epoch int) string {
	return filepath.Join(m.dir, fmt.Sprintf(filePattern, epoch))
}

// Save writes the snapshot for its epoch: temp file, fsync, atomic rename,
// then retention pruning and the optional mirror upload.
func (m *Manager) Save(ctx context.Context, state *TrainingState) error {
	target := m.Path(state.Epoch)

	tmp, err := os.CreateTemp(m.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // nolint errcheck

	if err := Encode(tmp, state, m.compression); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return err
	}

	if err := m.prune(); err != nil {
		return err
	}

	if m.mirror != nil {
		if err := m.upload(ctx, target); err != nil {
			return fmt.Errorf("checkpoint: mirror upload failed: %w", err)
		}
	}

	return nil
}

func (m *Manager) upload(ctx context.Context, path string) error {
	if err := m.ctrl.AcquireUpload(ctx); err != nil {
		return err
	}
	defer m.ctrl.ReleaseUpload()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() // nolint errcheck

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	return m.mirror.Put(ctx, filepath.Base(path), resource.NewThrottledReader(ctx, f, m.ctrl), fi.Size())
}

// Load reads and decodes the checkpoint at path.
func (m *Manager) Load(path string) (*TrainingState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint errcheck

	return Decode(f)
}

// Latest returns the checkpoint path with the highest epoch, or
// ErrNoCheckpoint when the directory holds none.
func (m *Manager) Latest() (string, int, error) {
	epochs, err := m.epochs()
	if err != nil {
		return "", 0, err
	}
	if len(epochs) == 0 {
		return "", 0, ErrNoCheckpoint
	}

	last := epochs[len(epochs)-1]
	return m.Path(last), last, nil
}

func (m *Manager) epochs() ([]int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var epochs []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var epoch int
		if _, err := fmt.Sscanf(e.Name(), filePattern, &epoch); err != nil {
			continue
		}
		// Sscanf tolerates trailing garbage (e.g. leftover temp files);
		// require an exact name.
		if e.Name() == fmt.Sprintf(filePattern, epoch) {
			epochs = append(epochs, epoch)
		}
	}

	sort.Ints(epochs)
	return epochs, nil
}

func (m *Manager) prune() error {
	if m.keep <= 0 {
		return nil
	}

	epochs, err := m.epochs()
	if err != nil {
		return err
	}

	for len(epochs) > m.keep {
		if err := os.Remove(m.Path(epochs[0])); err != nil && !os.IsNotExist(err) {
			return err
		}
		epochs = epochs[1:]
	}
	return nil
}
