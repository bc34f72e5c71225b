package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/savaki/codecommit-migration/internal/chime"
	"github.com/savaki/codecommit-migration/internal/di"
	"github.com/savaki/codecommit-migration/internal/notify"
	"github.com/savaki/codecommit-migration/internal/services"
	"github.com/urfave/cli/v2"
)

// newHandler wires the notifier from its configuration.
func newHandler(config *services.Config, commits notify.CommitFetcher) (*notify.Handler, error) {
	client, err := chime.New(config.HTTPEndpoint)
	if err != nil {
		return nil, err
	}
	return notify.NewHandler(commits, client), nil
}

// readEvent reads a raw event from path, or stdin when path is "-".
func readEvent(path string) (json.RawMessage, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event file: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("event is not valid JSON")
	}
	return data, nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "chime-notifier").Logger()
	ctx := logger.WithContext(context.Background())

	env := os.Getenv("ENV")
	if env == "" {
		env = "dev"
	}

	container, err := di.New(env, di.WithContext(ctx))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DI container")
		os.Exit(1)
	}

	config, err := di.Get[*services.Config](container)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if config.LogLevel != "" {
		logger = logger.Level(di.ParseLevel(config.LogLevel))
	}

	commits := di.MustGet[*services.CodeCommitService](container)
	handler, err := newHandler(config, commits)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create handler")
		os.Exit(1)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		wrappedHandler := func(ctx context.Context, event json.RawMessage) error {
			ctx = logger.WithContext(ctx)
			return handler.Handle(ctx, event)
		}
		lambda.Start(wrappedHandler)
		return
	}

	app := &cli.App{
		Name:  "chime-notifier",
		Usage: "Post a CodeCommit or CodeBuild event to the chat webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "event",
				Usage:    "path to the event JSON, - for stdin",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			event, err := readEvent(c.String("event"))
			if err != nil {
				return err
			}

			ctx := logger.WithContext(c.Context)
			return handler.Handle(ctx, event)
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
