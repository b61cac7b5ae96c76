package element

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/telemetry/metric"
)

func onChip2048(t *testing.T) domain.KeyReference {
	t.Helper()
	key, err := ResolveOnChipSized(domain.OIDRSAKey1, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestAwait_TimeoutAbortsAndResets(t *testing.T) {
	dev := newFakeDevice(t)
	dev.manual = true
	m := metric.NewRegistry()
	s := openTest(t, dev, WithAwaitTimeout(20*time.Millisecond), WithMetrics(m))

	req := domain.NewEncryptRequest([]byte("hi"), onChip2048(t))
	h, err := s.Encrypt(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Await(context.Background(), h)
	requireKind(t, err, domain.ErrOperationTimeout)
	if domain.KindOf(err) != domain.KindOperation {
		t.Errorf("KindOf() = %v", domain.KindOf(err))
	}
	if h.Status() != domain.StatusTimeout {
		t.Errorf("Status() = %v, want timeout", h.Status())
	}
	if dev.resetCount() != 1 {
		t.Errorf("resets = %d, want 1", dev.resetCount())
	}
	if got := testutil.ToFloat64(m.Aborts); got != 1 {
		t.Errorf("aborts = %v", got)
	}
	if !s.IsOpen() {
		t.Fatal("session should stay open after a successful reset")
	}

	// The slot is free again.
	h2, err := s.Encrypt(context.Background(), req)
	if err != nil {
		t.Fatalf("Encrypt() after timeout error = %v", err)
	}
	dev.completeNext()
	if _, err := s.Await(context.Background(), h2); err != nil {
		t.Fatalf("Await() after timeout error = %v", err)
	}
}

func TestAwait_ContextCancel(t *testing.T) {
	dev := newFakeDevice(t)
	dev.manual = true
	s := openTest(t, dev, WithAwaitTimeout(0))

	h, err := s.Encrypt(context.Background(), domain.NewEncryptRequest([]byte("hi"), onChip2048(t)))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Await(ctx, h)
	requireKind(t, err, domain.ErrOperationTimeout)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause should be context.Canceled: %v", err)
	}
}

func TestAwait_ResetFailureClosesSession(t *testing.T) {
	dev := newFakeDevice(t)
	dev.manual = true
	dev.resetErr = errors.New("reset line stuck")
	s := openTest(t, dev, WithAwaitTimeout(10*time.Millisecond))

	h, err := s.Encrypt(context.Background(), domain.NewEncryptRequest([]byte("hi"), onChip2048(t)))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Await(context.Background(), h)
	requireKind(t, err, domain.ErrOperationTimeout)
	if s.IsOpen() {
		t.Error("session should close when the reset fails")
	}
}

func TestAwait_LateCompletionIgnored(t *testing.T) {
	dev := newFakeDevice(t)
	dev.manual = true
	s := openTest(t, dev)

	h, err := s.Encrypt(context.Background(), domain.NewEncryptRequest([]byte("hi"), onChip2048(t)))
	if err != nil {
		t.Fatal(err)
	}
	s.abort(h, domain.StatusTimeout, context.DeadlineExceeded)
	h.onComplete(Completion{Status: domain.StatusSuccess, Data: []byte{1}})

	if h.Status() != domain.StatusTimeout {
		t.Errorf("Status() = %v, want timeout", h.Status())
	}
}

func TestAwait_DeviceStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.StatusCode
		wantErr error
	}{
		{"access denied", domain.StatusAccessDenied, domain.ErrOperationFailed},
		{"invalid oid", domain.StatusInvalidOID, domain.ErrObjectNotFound},
		{"comms error", domain.StatusCommsError, domain.ErrOperationFailed},
		{"busy is never final", domain.StatusBusy, domain.ErrOperationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice(t)
			dev.status = tt.status
			s := openTest(t, dev)

			_, err := s.EncryptMessage(context.Background(), domain.NewEncryptRequest([]byte("hi"), onChip2048(t)))
			requireKind(t, err, tt.wantErr)
			if domain.KindOf(err) != domain.KindOperation {
				t.Errorf("KindOf() = %v", domain.KindOf(err))
			}
			want := tt.status
			if want == domain.StatusBusy {
				want = domain.StatusCommandError
			}
			if st, _ := domain.GetStatus(err); st != want {
				t.Errorf("status = %v, want %v", st, want)
			}
		})
	}
}

func TestAwait_Idempotent(t *testing.T) {
	dev := newFakeDevice(t)
	s := openTest(t, dev)

	h, err := s.Encrypt(context.Background(), domain.NewEncryptRequest([]byte("hi"), onChip2048(t)))
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.Await(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	first[0] ^= 0xFF

	second, err := s.Await(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if first[0] == second[0] {
		t.Error("Await should return an independent copy")
	}
}

func TestHandle_DoneClosesOnCompletion(t *testing.T) {
	dev := newFakeDevice(t)
	dev.manual = true
	s := openTest(t, dev)

	h, err := s.Encrypt(context.Background(), domain.NewEncryptRequest([]byte("hi"), onChip2048(t)))
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.Done():
		t.Fatal("Done closed before the element completed")
	default:
	}
	if h.Status() != domain.StatusBusy {
		t.Errorf("Status() = %v, want busy", h.Status())
	}

	dev.completeNext()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after completion")
	}
	if h.Status() != domain.StatusSuccess {
		t.Errorf("Status() = %v, want success", h.Status())
	}
	ct, err := s.Await(context.Background(), h)
	if err != nil || len(ct) != 256 {
		t.Errorf("Await() = %d bytes, %v", len(ct), err)
	}
}

func TestAwaitInto(t *testing.T) {
	dev := newFakeDevice(t)
	s := openTest(t, dev)
	req := domain.NewEncryptRequest([]byte("hi"), onChip2048(t))

	h, err := s.Encrypt(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.AwaitInto(context.Background(), h, make([]byte, 100))
	requireKind(t, err, domain.ErrBufferTooSmall)

	buf := make([]byte, 512)
	n, err := s.AwaitInto(context.Background(), h, buf)
	if err != nil {
		t.Fatalf("AwaitInto() error = %v", err)
	}
	if n != 256 {
		t.Errorf("n = %d, want 256", n)
	}
}

func TestAwait_ResultOverflow(t *testing.T) {
	dev := newFakeDevice(t)
	dev.oversize = true
	s := openTest(t, dev)

	_, err := s.EncryptMessage(context.Background(), domain.NewEncryptRequest([]byte("hi"), onChip2048(t)))
	requireKind(t, err, domain.ErrResultOverflow)
}

func TestAwait_BadHandle(t *testing.T) {
	dev := newFakeDevice(t)
	s := openTest(t, dev)

	_, err := s.Await(context.Background(), nil)
	requireKind(t, err, domain.ErrInvalidArgument)

	other := &fakeDevice{name: t.Name() + "/other", keys: dev.keys}
	s2 := openTest(t, other)
	h, err := s2.Encrypt(context.Background(), domain.NewEncryptRequest([]byte("hi"), onChip2048(t)))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Await(context.Background(), h)
	requireKind(t, err, domain.ErrInvalidArgument)
}
