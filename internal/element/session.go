package element

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/telemetry/metric"
)

const (
	// DefaultAwaitTimeout bounds how long Await waits for the element.
	DefaultAwaitTimeout = 5 * time.Second

	// resetTimeout bounds the device reset issued when a command is aborted.
	resetTimeout = 2 * time.Second
)

// openElements tracks elements with an open session in this process.
var openElements = struct {
	sync.Mutex
	names map[string]ulid.ULID
}{names: make(map[string]ulid.ULID)}

// Session is an exclusive channel to one secure element.
//
// A Session allows a single outstanding command: Encrypt blocks until the
// previous command has completed or been aborted.
type Session struct {
	id      ulid.ULID
	dev     Device
	logger  *slog.Logger
	metrics *metric.Registry
	limiter *rate.Limiter

	awaitTimeout time.Duration

	// slot holds a token while a command is in flight.
	slot chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight *Handle
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithAwaitTimeout bounds Await. Zero disables the session bound, leaving
// only the caller's context.
func WithAwaitTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.awaitTimeout = d
	}
}

// WithRateLimit paces command submission, e.g. to respect bus timing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Session) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// Open establishes a session with dev.
//
// It fails with a transport error if dev already has an open session in this
// process or if the device cannot be opened.
func Open(ctx context.Context, dev Device, opts ...Option) (*Session, error) {
	if dev == nil {
		return nil, domain.ErrTransportUnavailable.WithDetails("no device")
	}

	s := &Session{
		id:           ulid.Make(),
		dev:          dev,
		logger:       slog.Default(),
		limiter:      rate.NewLimiter(rate.Inf, 0),
		awaitTimeout: DefaultAwaitTimeout,
		slot:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id.String(), "element", dev.Name())

	if err := claim(dev.Name(), s.id); err != nil {
		return nil, err
	}

	if err := dev.Open(ctx); err != nil {
		unclaim(dev.Name(), s.id)
		s.logger.Error("element open failed", "error", err)
		if domain.KindOf(err) == domain.KindTransport {
			return nil, err
		}
		return nil, domain.ErrTransportUnavailable.WithCause(err)
	}

	s.metrics.SessionOpened()
	s.logger.Debug("session opened")
	return s, nil
}

func claim(name string, id ulid.ULID) error {
	openElements.Lock()
	defer openElements.Unlock()
	if owner, ok := openElements.names[name]; ok {
		return domain.ErrSessionAlreadyOpen.WithDetails("%s held by session %s", name, owner)
	}
	openElements.names[name] = id
	return nil
}

func unclaim(name string, id ulid.ULID) {
	openElements.Lock()
	defer openElements.Unlock()
	if owner, ok := openElements.names[name]; ok && owner == id {
		delete(openElements.names, name)
	}
}

// ID returns the session identifier.
func (s *Session) ID() ulid.ULID {
	return s.id
}

// Device returns the underlying device.
func (s *Session) Device() Device {
	return s.dev
}

// IsOpen reports whether the session accepts commands.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close aborts any in-flight command and releases the element.
// Calling Close more than once is safe.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	inflight := s.inflight
	s.mu.Unlock()

	if inflight != nil {
		s.abort(inflight, domain.StatusAborted, domain.ErrSessionClosed)
	}

	err := s.dev.Close()
	unclaim(s.dev.Name(), s.id)
	s.metrics.SessionClosed()
	if err != nil {
		s.logger.Warn("element close failed", "error", err)
		return domain.ErrTransportUnavailable.WithDetails("close").WithCause(err)
	}
	s.logger.Debug("session closed")
	return nil
}

func (s *Session) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return nil
}

// acquire takes the in-flight slot, waiting for the previous command.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	default:
	}

	s.logger.Debug("waiting for in-flight command")
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domain.ErrTransportBusy.WithCause(ctx.Err())
	}
}

func (s *Session) release() {
	select {
	case <-s.slot:
	default:
	}
}

// submit hands cmd to the device and returns its handle. size is the key
// size the result is checked against; KeySizeUnknown skips the check.
func (s *Session) submit(ctx context.Context, cmd *Command, key domain.KeyReference, size domain.KeySize) (*Handle, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		s.release()
		return nil, domain.ErrTransportBusy.WithDetails("rate limit").WithCause(err)
	}

	h := &Handle{
		ID:        cmd.ID,
		Op:        cmd.Op,
		Key:       key,
		size:      size,
		submitted: time.Now(),
		f:         newFuture(),
		session:   s,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.release()
		return nil, domain.ErrSessionClosed
	}
	s.inflight = h
	s.mu.Unlock()

	log := s.logger.With("request", h.ID.String(), "op", cmd.Op.String())
	if err := s.dev.Submit(cmd, h.onComplete); err != nil {
		s.finish(h)
		s.metrics.ObserveCommand(cmd.Op.String(), "rejected", time.Since(h.submitted))
		log.Warn("element rejected command", "error", err)

		var se *SubmitError
		if errors.As(err, &se) {
			return nil, domain.ErrSubmissionRejected.WithStatus(se.Status).WithCause(se.Err)
		}
		if domain.IsDomainError(err, "") {
			return nil, err
		}
		return nil, domain.ErrSubmissionRejected.WithCause(err)
	}

	log.Debug("command submitted", "key", key.String())
	return h, nil
}

// finish clears h as the in-flight command and frees the slot.
func (s *Session) finish(h *Handle) {
	s.mu.Lock()
	if s.inflight == h {
		s.inflight = nil
	}
	s.mu.Unlock()
	h.releaseOnce.Do(s.release)
}

// abort fails h with status, resets the element and frees the slot. If the
// reset fails the session is closed.
func (s *Session) abort(h *Handle, status domain.StatusCode, cause error) {
	if !h.f.complete(Completion{Status: status}, cause) {
		return
	}
	s.metrics.Aborted()
	s.metrics.ObserveCommand(h.Op.String(), resultLabel(status), time.Since(h.submitted))
	s.logger.Warn("aborting command", "request", h.ID.String(), "status", status.String(), "cause", cause)

	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	resetErr := s.dev.Reset(ctx)
	s.finish(h)

	if resetErr != nil {
		s.logger.Error("element reset failed, closing session", "error", resetErr)
		s.mu.Lock()
		alreadyClosed := s.closed
		s.mu.Unlock()
		if !alreadyClosed {
			_ = s.Close()
		}
	}
}

func resultLabel(status domain.StatusCode) string {
	if status == domain.StatusSuccess {
		return "success"
	}
	return fmt.Sprintf("0x%.4X", uint32(status))
}
