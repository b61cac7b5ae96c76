package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/trustm-go/internal/cli/output"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration with secrets masked",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration",
				Action: configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.format == output.FormatText {
		return rt.emitAs(output.FormatYAML, rt.cfg.Redacted())
	}
	return rt.emit(rt.cfg.Redacted())
}

func configValidate(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	fmt.Fprintf(rt.out, "Configuration is valid (backend: %s)\n", rt.cfg.Backend)
	return nil
}
