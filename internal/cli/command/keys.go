package command

import (
	"context"
	"crypto/rsa"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/trustm-go/internal/cli/output"
	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/element/emulator"
	"github.com/yndnr/trustm-go/internal/element/pkcs11dev"
	"github.com/yndnr/trustm-go/internal/pemkey"
)

// provisioner is implemented by backends that can create and export keys.
type provisioner interface {
	Provision(ctx context.Context, oid domain.ObjectID, bits int) (*rsa.PublicKey, error)
	PublicKey(ctx context.Context, oid domain.ObjectID) (*rsa.PublicKey, error)
}

// lister is implemented by backends that can enumerate key objects.
type lister interface {
	Objects(ctx context.Context) ([]domain.ObjectID, error)
}

func oidFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "oid",
		Usage: "key object `OID` (0xNNNN or decimal)",
		Value: domain.OIDRSAKey1.String(),
	}
}

func pemOutFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "write the public key PEM to `FILE` instead of stdout",
	}
}

// ProvisionCommand returns the provision subcommand.
func ProvisionCommand() *cli.Command {
	return &cli.Command{
		Name:  "provision",
		Usage: "Generate an RSA key pair in a key object",
		Flags: []cli.Flag{
			oidFlag(),
			&cli.IntFlag{
				Name:  "bits",
				Usage: "key size, 1024 or 2048",
				Value: 2048,
			},
			pemOutFlag(),
		},
		Action: func(c *cli.Context) error {
			return withProvisioner(c, func(rt *runtime, p provisioner, oid domain.ObjectID) (*rsa.PublicKey, error) {
				return p.Provision(rt.ctx, oid, c.Int("bits"))
			})
		},
	}
}

// PubkeyCommand returns the pubkey subcommand.
func PubkeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "pubkey",
		Usage: "Export the public key of a key object as PEM",
		Flags: []cli.Flag{oidFlag(), pemOutFlag()},
		Action: func(c *cli.Context) error {
			return withProvisioner(c, func(rt *runtime, p provisioner, oid domain.ObjectID) (*rsa.PublicKey, error) {
				return p.PublicKey(rt.ctx, oid)
			})
		},
	}
}

func withProvisioner(c *cli.Context, fn func(*runtime, provisioner, domain.ObjectID) (*rsa.PublicKey, error)) error {
	oid, err := domain.ParseObjectID(c.String("oid"))
	if err != nil {
		return err
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	s, err := rt.openSession()
	if err != nil {
		return err
	}
	p, ok := s.Device().(provisioner)
	if !ok {
		return domain.ErrInvalidArgument.WithDetails("backend %s cannot manage keys", rt.cfg.Backend)
	}

	pub, err := fn(rt, p, oid)
	if err != nil {
		return err
	}
	pemBytes, err := pemkey.EncodePublicKey(pub)
	if err != nil {
		return domain.ErrOperationFailed.WithCause(err)
	}

	report := &output.PublicKeyReport{OID: oid.String(), Bits: pub.N.BitLen()}
	if out := c.String("out"); out != "" {
		if err := writeOutput(out, pemBytes); err != nil {
			return err
		}
		report.Output = out
	} else {
		report.PEM = string(pemBytes)
	}
	return rt.emit(report)
}

// ListCommand returns the list subcommand.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List provisioned key objects and their sizes",
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	s, err := rt.openSession()
	if err != nil {
		return err
	}
	l, ok := s.Device().(lister)
	if !ok {
		return domain.ErrInvalidArgument.WithDetails("backend %s cannot list objects", rt.cfg.Backend)
	}

	oids, err := l.Objects(rt.ctx)
	if err != nil {
		return err
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i] < oids[j] })

	list := make(output.ObjectList, 0, len(oids))
	for _, oid := range oids {
		meta, err := s.ReadMetadata(rt.ctx, oid)
		if err != nil {
			return err
		}
		list = append(list, output.ObjectReport{OID: oid.String(), Bits: int(meta.KeySize())})
	}
	return rt.emit(list)
}

var (
	_ provisioner = (*emulator.Device)(nil)
	_ provisioner = (*pkcs11dev.Device)(nil)
	_ lister      = (*emulator.Device)(nil)
)
