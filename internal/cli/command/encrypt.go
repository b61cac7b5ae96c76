package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/trustm-go/internal/cli/output"
	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/element"
	"github.com/yndnr/trustm-go/internal/pemkey"
	"github.com/yndnr/trustm-go/internal/telemetry/logger"
)

func encryptFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "key",
			Aliases: []string{"k"},
			Usage:   "encrypt with the on-chip key at `OID` (0xNNNN or decimal)",
		},
		&cli.StringFlag{
			Name:    "pubkey",
			Aliases: []string{"p"},
			Usage:   "encrypt with the RSA public key in PEM `FILE`",
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "write the ciphertext to `FILE`",
		},
		&cli.StringFlag{
			Name:    "in",
			Aliases: []string{"i"},
			Usage:   "read the plaintext from `FILE`",
		},
	}
}

// encryptOptions is the immutable result of parsing the encrypt flags.
type encryptOptions struct {
	onChip     bool
	oid        domain.ObjectID
	pubkeyFile string
	inFile     string
	outFile    string
}

// parseEncryptOptions checks the encrypt flags without touching files or
// the element.
func parseEncryptOptions(c *cli.Context) (encryptOptions, error) {
	var o encryptOptions

	hasKey, hasPub := c.IsSet("key"), c.IsSet("pubkey")
	switch {
	case hasKey && hasPub:
		return o, domain.ErrArgumentConflict.WithDetails("-k and -p are mutually exclusive")
	case !hasKey && !hasPub:
		return o, domain.ErrMissingArgument.WithDetails("select a key with -k OID or -p PUBKEY")
	case hasKey:
		oid, err := domain.ParseObjectID(c.String("key"))
		if err != nil {
			return o, err
		}
		o.onChip = true
		o.oid = oid
	default:
		o.pubkeyFile = c.String("pubkey")
	}

	if o.outFile = c.String("out"); o.outFile == "" {
		return o, domain.ErrMissingArgument.WithDetails("Output filename missing!!!")
	}
	if o.inFile = c.String("in"); o.inFile == "" {
		return o, domain.ErrMissingArgument.WithDetails("Input filename missing!!!")
	}
	return o, nil
}

func encryptAction(c *cli.Context) error {
	if c.NumFlags() == 0 && c.NArg() == 0 {
		return cli.ShowAppHelp(c)
	}
	if c.NArg() > 0 {
		return domain.ErrInvalidArgument.WithDetails("unexpected argument %q", c.Args().First())
	}

	opts, err := parseEncryptOptions(c)
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

	rt.printf("%s\n", output.Banner)
	defer rt.printf("%s\n", output.Banner)

	err = runEncrypt(rt, s, opts)
	if line := failureLine(err); line != "" {
		rt.printf("%s\n", line)
	}
	return err
}

func runEncrypt(rt *runtime, s *element.Session, o encryptOptions) error {
	var (
		key     domain.KeyReference
		keyDesc string
		err     error
	)
	if o.onChip {
		if rt.cfg.KeySize != 0 {
			key, err = element.ResolveOnChipSized(o.oid, rt.cfg.KeySize)
		} else {
			key = element.ResolveOnChip(o.oid)
		}
		if err != nil {
			return err
		}
		keyDesc = o.oid.String()
		rt.field("OID Key", keyDesc)
	} else {
		decoded, err := pemkey.ReadFile(o.pubkeyFile)
		if err != nil {
			return err
		}
		if key, err = element.ResolveDecoded(decoded); err != nil {
			return err
		}
		keyDesc = key.String()
		rt.field("Pubkey file", o.pubkeyFile)
	}
	rt.field("Output File Name", o.outFile)
	rt.field("Input File Name", o.inFile)

	plaintext, err := readInput(o.inFile)
	if err != nil {
		return err
	}
	rt.printf("Input data : \n")
	if rt.text {
		_ = output.Hexdump(rt.out, plaintext)
	}

	h, err := s.Encrypt(rt.ctx, domain.NewEncryptRequest(plaintext, key))
	if err != nil {
		return err
	}
	ciphertext, err := s.Await(rt.ctx, h)
	if err != nil {
		return err
	}
	if err := writeOutput(o.outFile, ciphertext); err != nil {
		return err
	}

	logger.L(logger.WithRequestID(rt.ctx, h.ID.String()), rt.logger).Info("message encrypted",
		"key", keyDesc,
		"bytes", len(ciphertext))

	return rt.emit(&output.EncryptReport{
		Backend:     rt.cfg.Backend,
		Session:     s.ID().String(),
		Request:     h.ID.String(),
		Key:         keyDesc,
		KeySize:     int(h.KeySize()),
		Input:       o.inFile,
		Output:      o.outFile,
		InputBytes:  len(plaintext),
		OutputBytes: len(ciphertext),
		Status:      h.Status().String(),
	})
}

// readInput reads a plaintext file. Files larger than the engine accepts
// are rejected rather than truncated.
func readInput(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.ErrReadFailed.WithDetails("%s", path).WithCause(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, domain.MaxPlaintextLength+1))
	if err != nil {
		return nil, domain.ErrReadFailed.WithDetails("%s", path).WithCause(err)
	}
	if len(data) == 0 {
		return nil, domain.ErrReadFailed.WithDetails("%s is empty", path)
	}
	if len(data) > domain.MaxPlaintextLength {
		return nil, domain.ErrPayloadTooLarge.WithDetails("%s exceeds %d bytes", path, domain.MaxPlaintextLength)
	}
	return data, nil
}

// writeOutput writes data to path through a temporary file in the same
// directory, so a failed run never leaves a partial file behind.
func writeOutput(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".trustm-*")
	if err != nil {
		return domain.ErrWriteFailed.WithDetails("%s", path).WithCause(err)
	}
	name := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(name)
		return domain.ErrWriteFailed.WithDetails("%s", path).WithCause(err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return domain.ErrWriteFailed.WithDetails("%s", path).WithCause(err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return domain.ErrWriteFailed.WithDetails("%s", path).WithCause(err)
	}
	return nil
}

// failureLine returns the one-line progress message for err, or "".
func failureLine(err error) string {
	if err == nil {
		return ""
	}
	if status, ok := domain.GetStatus(err); ok {
		return fmt.Sprintf("optiga_lib_status Error!!! [0x%.8X]", uint32(status))
	}
	switch {
	case errors.Is(err, domain.ErrInvalidPublicKeyFile):
		return "Invalid Public Key File!!!"
	case errors.Is(err, domain.ErrUnsupportedKeyType):
		return "Wrong Key Type!!!"
	case errors.Is(err, domain.ErrReadFailed):
		return "Error reading file!!!"
	default:
		return ""
	}
}
