package resource

import (
	"context"
	"io"
)

// ThrottledReader debits the controller's IO budget for every chunk it
// serves, slowing uploads that read from it.
type ThrottledReader struct {
	r   io.Reader
	rc  *Controller
	ctx context.Context
}

// NewThrottledReader wraps r with the controller's throughput limit.
func NewThrottledReader(ctx context.Context, r io.Reader, rc *Controller) *ThrottledReader {
	return &ThrottledReader{r: r, rc: rc, ctx: ctx}
}

func (r *ThrottledReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.rc.AcquireIO(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
