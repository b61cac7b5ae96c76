package element

import (
	"context"

	"github.com/yndnr/trustm-go/internal/core/domain"
)

// Await blocks until h leaves Busy and returns a copy of the ciphertext.
//
// The wait is bounded by ctx and by the session await timeout. When either
// expires the command is aborted, the element reset, and ErrOperationTimeout
// returned. A failure status reported by the element is returned verbatim in
// the error's Status; nothing is retried. Awaiting a handle again returns the
// same outcome.
func (s *Session) Await(ctx context.Context, h *Handle) (domain.Ciphertext, error) {
	data, err := s.wait(ctx, h)
	if err != nil {
		return nil, err
	}
	out := make(domain.Ciphertext, len(data))
	copy(out, data)
	return out, nil
}

// AwaitInto is Await writing into dst. It returns the number of bytes the
// element reported, or ErrBufferTooSmall if dst cannot hold them.
func (s *Session) AwaitInto(ctx context.Context, h *Handle, dst []byte) (int, error) {
	data, err := s.wait(ctx, h)
	if err != nil {
		return 0, err
	}
	if len(data) > len(dst) {
		return 0, domain.ErrBufferTooSmall.WithDetails("%d bytes needed, %d available", len(data), len(dst))
	}
	return copy(dst, data), nil
}

func (s *Session) wait(ctx context.Context, h *Handle) ([]byte, error) {
	if h == nil || h.f == nil {
		return nil, domain.ErrInvalidArgument.WithDetails("nil handle")
	}
	if h.session != s {
		return nil, domain.ErrInvalidArgument.WithDetails("handle %s belongs to another session", h.ID)
	}

	select {
	case <-h.Done():
		return result(h)
	default:
	}

	if s.awaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.awaitTimeout)
		defer cancel()
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		s.abort(h, domain.StatusTimeout, ctx.Err())
		// abort is a no-op if the element completed first.
		<-h.Done()
	}
	return result(h)
}

// result maps a completed future to data or an error.
func result(h *Handle) ([]byte, error) {
	status := h.f.Status()
	switch status {
	case domain.StatusSuccess:
		if h.size != domain.KeySizeUnknown && len(h.f.data) > h.size.Bytes() {
			return nil, domain.ErrResultOverflow.WithDetails("%d bytes for RSA-%d", len(h.f.data), int(h.size))
		}
		return h.f.data, nil
	case domain.StatusTimeout:
		return nil, domain.ErrOperationTimeout.WithStatus(status).WithCause(h.f.cause)
	case domain.StatusInvalidOID:
		return nil, domain.ErrObjectNotFound.WithDetails("%s", h.Key.OID).WithStatus(status)
	default:
		err := domain.ErrOperationFailed.WithStatus(status)
		if h.f.cause != nil {
			err = err.WithCause(h.f.cause)
		}
		return nil, err
	}
}
