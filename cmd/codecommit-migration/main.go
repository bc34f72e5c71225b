package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/savaki/codecommit-migration/cmd/codecommit-migration/commands"
	"github.com/savaki/codecommit-migration/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "codecommit-migration",
		Usage: "Migrate GitLab repositories into AWS CodeCommit",
		Description: `Moves GitLab projects into CodeCommit repositories provisioned by CloudFormation.

This tool provides commands for:
  - Creating the shared artifact bucket stack (setup)
  - Listing GitLab projects into a projects file (projects)
  - Mirroring projects into per-project CodeCommit stacks (migrate)
  - Archiving migrated GitLab projects (archive)`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warning, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region, defaults to the shared AWS config",
				EnvVars: []string{"AWS_REGION"},
			},
		},
		Before: func(c *cli.Context) error {
			logger = logger.Level(di.ParseLevel(c.String("log-level")))
			c.Context = logger.WithContext(c.Context)
			return nil
		},
		Commands: []*cli.Command{
			commands.MigrateCommand(),
			commands.SetupCommand(),
			commands.ProjectsCommand(),
			commands.ArchiveCommand(),
			commands.StackNameCommand(),
		},
	}

	if err := app.RunContext(logger.WithContext(ctx), os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		stop()
		os.Exit(1)
	}
}
