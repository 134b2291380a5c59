package cli

// This file contains the kill and exec commands, which expose the shell
// executor used for device commands.

import (
	"fmt"
	"strings"

	"github.com/devrun/devrun/shell"
	"github.com/urfave/cli/v2"
)

func (a *App) kill(ctx *cli.Context) error {
	fragment := strings.Join(ctx.Args().Slice(), " ")
	if fragment == "" {
		return fmt.Errorf("no command fragment specified")
	}

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	executor, err := a.executor(cfg)
	if err != nil {
		return err
	}

	if err := executor.KillByCommand(ctx.Context, fragment); err != nil {
		return err
	}
	a.logger.Info().Str("fragment", fragment).Msg("Terminated matching processes")
	return nil
}

func (a *App) exec(ctx *cli.Context) error {
	command := strings.Join(ctx.Args().Slice(), " ")
	if command == "" {
		return fmt.Errorf("no command specified")
	}

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	executor, err := a.executor(cfg)
	if err != nil {
		return err
	}

	if ctx.IsSet("result-folder") || ctx.IsSet("serial") {
		command = shell.ParseVariables(command, ctx.String("result-folder"), ctx.String("serial"))
	}
	a.logger.Debug().Str("command", command).Str("host", executor.Host().String()).Msg("Running command")

	switch {
	case ctx.Bool("capture"):
		out, err := executor.RunWithResult(ctx.Context, command)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	case ctx.String("redirect") != "":
		_, err := executor.RunWithRedirect(ctx.Context, command, ctx.String("redirect"), true)
		return err
	default:
		_, err := executor.Run(ctx.Context, command, true)
		return err
	}
}
