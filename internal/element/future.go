package element

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/yndnr/trustm-go/internal/core/domain"
)

// future is the asynchronous status cell of one request.
//
// It starts Busy and is completed exactly once, either by the device's
// completion callback or by an abort. data and cause are written before done
// is closed and are read only after it.
type future struct {
	status *atomic.Uint32
	done   chan struct{}
	once   sync.Once

	data  []byte
	cause error
}

func newFuture() *future {
	return &future{
		status: atomic.NewUint32(uint32(domain.StatusBusy)),
		done:   make(chan struct{}),
	}
}

// complete stores the outcome. It reports false if the future was already
// completed, in which case c is dropped.
func (f *future) complete(c Completion, cause error) bool {
	completed := false
	f.once.Do(func() {
		status := c.Status
		if status == domain.StatusBusy {
			// A completion can never leave the cell Busy.
			status = domain.StatusCommandError
		}
		f.data = c.Data
		f.cause = cause
		f.status.Store(uint32(status))
		close(f.done)
		completed = true
	})
	return completed
}

// Status returns the current status; Busy until completion.
func (f *future) Status() domain.StatusCode {
	return domain.StatusCode(f.status.Load())
}
