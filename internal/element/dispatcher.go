package element

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/trustm-go/internal/core/domain"
)

// Handle tracks one submitted command until it completes.
type Handle struct {
	ID  ulid.ULID
	Op  Opcode
	Key domain.KeyReference

	size        domain.KeySize
	submitted   time.Time
	f           *future
	session     *Session
	releaseOnce sync.Once
}

// Status returns the request status without blocking. It is StatusBusy
// until the element completes the command.
func (h *Handle) Status() domain.StatusCode {
	return h.f.Status()
}

// Done is closed once the command has completed or been aborted.
func (h *Handle) Done() <-chan struct{} {
	return h.f.done
}

// KeySize returns the key size the command runs with, when known.
func (h *Handle) KeySize() domain.KeySize {
	return h.size
}

func (h *Handle) onComplete(c Completion) {
	if !h.f.complete(c, nil) {
		return
	}
	s := h.session
	s.metrics.ObserveCommand(h.Op.String(), resultLabel(c.Status), time.Since(h.submitted))
	s.logger.Debug("command completed",
		"request", h.ID.String(),
		"status", c.Status.String(),
		"bytes", len(c.Data))
	s.finish(h)
}

// Encrypt validates req and submits it to the element.
//
// Validation failures are returned before anything is sent. For an on-chip
// key of unknown size the key's metadata is read first, and the payload is
// checked against the reported size; an oversized payload is never
// submitted for encryption. On success the returned Handle is Busy until the
// element completes; pass it to Await.
func (s *Session) Encrypt(ctx context.Context, req *domain.CryptoRequest) (*Handle, error) {
	if req == nil {
		return nil, domain.ErrInvalidArgument.WithDetails("nil request")
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, s.reject(err)
	}

	size := req.Key.Size
	if req.Key.Kind == domain.KeyRefOnChip && size == domain.KeySizeUnknown {
		if limit := req.Scheme.MaxCapacity(); len(req.Plaintext) > limit {
			return nil, s.reject(domain.ErrPayloadTooLarge.WithDetails(
				"%d bytes exceeds the largest key capacity of %d", len(req.Plaintext), limit))
		}

		meta, err := s.ReadMetadata(ctx, req.Key.OID)
		if err != nil {
			return nil, err
		}
		size = meta.KeySize()
		if size == domain.KeySizeUnknown {
			return nil, s.reject(domain.ErrUnsupportedKeyType.WithDetails(
				"object %s holds algorithm 0x%.2X", req.Key.OID, meta.Algorithm))
		}
		if err := req.CheckCapacity(size); err != nil {
			return nil, s.reject(err)
		}
	}

	cmd := &Command{
		ID:      ulid.Make(),
		Op:      OpEncryptRSA,
		Scheme:  req.Scheme,
		Payload: bytes.Clone(req.Plaintext),
		OID:     req.Key.OID,
	}
	if req.Key.Kind == domain.KeyRefHost {
		cmd.HostKey = &HostKey{
			DER:     bytes.Clone(req.Key.PublicKey),
			KeyType: req.Key.Size.KeyTypeTag(),
		}
	}

	h, err := s.submit(ctx, cmd, req.Key, size)
	if err != nil {
		return nil, err
	}
	s.metrics.AddPayload(len(req.Plaintext))
	return h, nil
}

// EncryptMessage runs Encrypt and Await back to back.
func (s *Session) EncryptMessage(ctx context.Context, req *domain.CryptoRequest) (domain.Ciphertext, error) {
	h, err := s.Encrypt(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Await(ctx, h)
}

// ReadMetadata reads the metadata of an object and waits for the result.
func (s *Session) ReadMetadata(ctx context.Context, oid domain.ObjectID) (Metadata, error) {
	if err := s.ensureOpen(); err != nil {
		return Metadata{}, err
	}

	ref := ResolveOnChip(oid)
	h, err := s.submit(ctx, &Command{ID: ulid.Make(), Op: OpReadMetadata, OID: oid}, ref, domain.KeySizeUnknown)
	if err != nil {
		return Metadata{}, err
	}
	data, err := s.wait(ctx, h)
	if err != nil {
		return Metadata{}, err
	}

	meta, err := ParseMetadata(data)
	if err != nil {
		return Metadata{}, domain.ErrOperationFailed.WithStatus(domain.StatusCommandError).WithCause(err)
	}
	return meta, nil
}

// reject records a pre-submission rejection and returns err.
func (s *Session) reject(err error) error {
	s.metrics.Rejected(domain.GetErrorCode(err))
	s.logger.Debug("request rejected before submission", "error", err)
	return err
}
