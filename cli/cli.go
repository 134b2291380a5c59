package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/devrun/devrun/config"
	"github.com/devrun/devrun/shell"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "devrun"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run scripted test cases on Android devices and record the run",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "Configuration file",
					Value:   config.DefaultFileName,
					EnvVars: []string{"DEVRUN_CONFIG"},
				},
				&cli.StringFlag{
					Name:    "host",
					Usage:   "Host shell family (posix or windows), detected when empty",
					EnvVars: []string{"DEVRUN_HOST"},
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run case files on a device",
		ArgsUsage: "CASE_FILE...",
		Action:    app.run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "package",
				Aliases:  []string{"p"},
				Usage:    "App id of the app under test (e.g., com.example.calculator)",
				Required: true,
				EnvVars:  []string{"DEVRUN_PACKAGE"},
			},
			&cli.StringFlag{
				Name:    "serial",
				Aliases: []string{"s"},
				Usage:   "Serial of the device, the only connected device when empty",
				EnvVars: []string{"ANDROID_SERIAL"},
			},
			&cli.StringFlag{
				Name:  "linked-serial",
				Usage: "Serial of a secondary device recorded alongside the primary one",
			},
			&cli.StringFlag{
				Name:  "initial-case",
				Usage: "Case file run before all other cases",
			},
			&cli.StringFlag{
				Name:  "task",
				Usage: "Task ID the run belongs to",
			},
			&cli.StringFlag{
				Name:    "results",
				Aliases: []string{"o"},
				Usage:   "Directory result folders are created in (overrides results_root)",
			},
			&cli.DurationFlag{
				Name:  "record-timeout",
				Usage: "Upper bound of each screen recording (overrides record_timeout)",
			},
			&cli.StringFlag{
				Name:  "case-command",
				Usage: "Command running one case file, may use {case}, {serial} and {adb} (overrides case_command)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "package",
				Aliases: []string{"p"},
				Usage:   "Filter by package (e.g., com.example.calculator)",
			},
			&cli.StringFlag{
				Name:    "results",
				Aliases: []string{"o"},
				Usage:   "Directory holding the result folders (overrides results_root)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "View the results of a previous run",
		ArgsUsage:       "[ID|INDEX] [-- PPROF_ARGS...]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `View the results of a previous run.

Arguments:
  0           View last run (default)
  -1          View 2nd last run
  -2          View 3rd last run
  <hex-id>    View run matching the ID prefix

Examples:
  devrun view                 # View last run
  devrun view -1              # View 2nd last run
  devrun view abc123          # View run with ID starting with abc123
  devrun view 0 -- -top       # Open the performance profile of the last run

Arguments after the run are passed to go tool pprof, which is started on the
performance profile (perf.pb.gz) of the run.`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "kill",
		Usage:     "Terminate processes whose command line contains a fragment",
		ArgsUsage: "FRAGMENT",
		Action:    app.kill,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "exec",
		Usage:     "Run a command through the devrun shell executor",
		ArgsUsage: "COMMAND",
		Action:    app.exec,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "capture",
				Usage: "Print the captured stdout instead of streaming it to the log",
			},
			&cli.StringFlag{
				Name:  "redirect",
				Usage: "Redirect stdout of the command to this file",
			},
			&cli.StringFlag{
				Name:  "result-folder",
				Usage: "Value of $DevRun_TestResultFolderPath",
			},
			&cli.StringFlag{
				Name:  "serial",
				Usage: "Value of $DevRun_deviceUdid",
			},
		},
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

// loadConfig loads the configuration file selected by the global flags. The
// default file is optional, an explicitly selected one is not.
func (a *App) loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String("config")
	cfg, err := config.Load(path, !ctx.IsSet("config"))
	if err != nil {
		return nil, err
	}
	if host := ctx.String("host"); host != "" {
		cfg.Host = host
	}
	a.logger.Debug().Str("config", path).Str("results", cfg.ResultsRoot).Msg("Loaded configuration")
	return cfg, nil
}

// executor creates the shell executor for the configured host family.
func (a *App) executor(cfg *config.Config) (*shell.Executor, error) {
	host := shell.DetectHost()
	if cfg.Host != "" {
		parsed, err := shell.ParseHost(cfg.Host)
		if err != nil {
			return nil, err
		}
		host = parsed
	}
	return shell.New(a.logger, host), nil
}
