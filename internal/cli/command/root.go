package command

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/trustm-go/internal/cli/config"
	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/infra/buildinfo"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitTransport  = 1
	ExitValidation = 2
	ExitSubmission = 3
	ExitOperation  = 4
	ExitIO         = 5
)

// App creates the CLI application. Action errors are returned from Run
// rather than exiting the process.
func App() *cli.App {
	return &cli.App{
		Name:      "trustm-rsa-enc",
		Usage:     "RSA encryption with a secure element key or a host public key",
		UsageText: "trustm-rsa-enc [-k OID | -p PUBKEY] -i INPUT -o OUTPUT",
		Version:   buildinfo.String(),
		Flags:     append(globalFlags(), encryptFlags()...),
		Action:    encryptAction,
		Commands: []*cli.Command{
			ProvisionCommand(),
			PubkeyCommand(),
			ListCommand(),
			ConfigCommand(),
		},
		HideHelpCommand: true,
		OnUsageError: func(c *cli.Context, err error, _ bool) error {
			return domain.ErrInvalidArgument.WithCause(err)
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// Run runs the application with args and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	app := App()
	app.Writer = stdout
	app.ErrWriter = stderr

	err := app.Run(args)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error to the process exit code of its failure stage.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	switch domain.KindOf(err) {
	case domain.KindTransport:
		return ExitTransport
	case domain.KindValidation:
		return ExitValidation
	case domain.KindSubmission:
		return ExitSubmission
	case domain.KindOperation:
		return ExitOperation
	case domain.KindIO:
		return ExitIO
	default:
		return ExitTransport
	}
}

// globalFlags returns flags shared by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "configuration file (default: " + config.DefaultConfigPath() + ")",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "element backend: emulator or pkcs11",
		},
		&cli.StringFlag{
			Name:  "emulator-dir",
			Usage: "emulator object store directory (empty: in memory)",
		},
		&cli.StringFlag{
			Name:  "pkcs11-module",
			Usage: "PKCS#11 module path",
		},
		&cli.StringFlag{
			Name:  "pkcs11-token",
			Usage: "PKCS#11 token label",
		},
		&cli.IntFlag{
			Name:  "key-size",
			Usage: "size of the on-chip key, 1024 or 2048 (default: read from key metadata)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "wait limit for each element command",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "diagnostic log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "diagnostic log format: text or json",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write Prometheus metrics to this file on exit",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "suppress banner and hexdump",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "result format: text, json or yaml",
			Value:   "text",
		},
	}
}

// flagKeys maps flags to configuration keys.
var flagKeys = map[string]string{
	"backend":       "backend",
	"emulator-dir":  "emulator.dir",
	"pkcs11-module": "pkcs11.module_path",
	"pkcs11-token":  "pkcs11.token_label",
	"key-size":      "key_size",
	"timeout":       "timeout",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"metrics-file":  "metrics_file",
	"quiet":         "quiet",
}

// overrides collects the configuration flags the user set.
func overrides(c *cli.Context) map[string]any {
	m := make(map[string]any)
	for flag, key := range flagKeys {
		if !c.IsSet(flag) {
			continue
		}
		m[key] = c.Value(flag)
	}
	return m
}
