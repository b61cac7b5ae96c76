package emulator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/storage"
	"github.com/yndnr/trustm-go/pkg/crypto/seal"
)

// Provision generates an RSA key pair of the given size in object oid,
// replacing any key already there, and returns its public half.
func (d *Device) Provision(ctx context.Context, oid domain.ObjectID, bits int) (*rsa.PublicKey, error) {
	if _, err := domain.ClassifyKeySize(bits); err != nil {
		return nil, err
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, domain.ErrOperationFailed.WithDetails("generate RSA-%d", bits).WithCause(err)
	}
	if err := d.Import(ctx, oid, priv); err != nil {
		return nil, err
	}
	return &priv.PublicKey, nil
}

// Import stores priv in object oid.
func (d *Device) Import(ctx context.Context, oid domain.ObjectID, priv *rsa.PrivateKey) error {
	if _, err := domain.ClassifyKeySize(priv.N.BitLen()); err != nil {
		return err
	}
	st, c, err := d.handles()
	if err != nil {
		return err
	}

	key := objectKey(oid)
	sealed, err := c.Seal(x509.MarshalPKCS1PrivateKey(priv), key)
	if err != nil {
		return domain.ErrOperationFailed.WithDetails("seal %s", oid).WithCause(err)
	}
	if err := st.Set(ctx, key, sealed); err != nil {
		return domain.ErrOperationFailed.WithDetails("store %s", oid).WithCause(err)
	}
	d.logger.Info("key provisioned", "oid", oid.String(), "bits", priv.N.BitLen())
	return nil
}

// PublicKey returns the public half of the key in object oid.
func (d *Device) PublicKey(ctx context.Context, oid domain.ObjectID) (*rsa.PublicKey, error) {
	st, c, err := d.handles()
	if err != nil {
		return nil, err
	}
	priv, status := loadKey(ctx, st, c, oid)
	switch status {
	case domain.StatusSuccess:
		return &priv.PublicKey, nil
	case domain.StatusInvalidOID:
		return nil, domain.ErrObjectNotFound.WithDetails("%s", oid).WithStatus(status)
	default:
		return nil, domain.ErrOperationFailed.WithDetails("read %s", oid).WithStatus(status)
	}
}

// Objects lists the provisioned key objects in ascending order.
func (d *Device) Objects(ctx context.Context) ([]domain.ObjectID, error) {
	st, _, err := d.handles()
	if err != nil {
		return nil, err
	}

	var oids []domain.ObjectID
	var bad error
	err = st.Scan(ctx, []byte(objPrefix), func(key, _ []byte) bool {
		raw, err := hex.DecodeString(strings.TrimPrefix(string(key), objPrefix))
		if err != nil || len(raw) != 2 {
			bad = errors.New("emulator: malformed object key " + string(key))
			return false
		}
		oids = append(oids, domain.ObjectID(binary.BigEndian.Uint16(raw)))
		return true
	})
	if err == nil {
		err = bad
	}
	if err != nil {
		return nil, domain.ErrOperationFailed.WithDetails("list objects").WithCause(err)
	}
	return oids, nil
}

func (d *Device) handles() (storage.Store, seal.Cipher, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return nil, nil, domain.ErrSessionClosed.WithCause(ErrNotOpen)
	}
	return d.store, d.cipher, nil
}
