package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/codecommit-migration/internal/di"
	"github.com/savaki/codecommit-migration/internal/gitlab"
	"github.com/savaki/codecommit-migration/internal/migration"
	"github.com/savaki/codecommit-migration/internal/services"
	"github.com/savaki/codecommit-migration/internal/utils"
	"github.com/urfave/cli/v2"
)

// setupFlags are the flags shared by setup and migrate.
func setupFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "templates-dir",
			Usage:   "directory holding account-setup.yaml and code-environment-setup.yaml",
			Value:   "cloudformation",
			EnvVars: []string{"TEMPLATES_DIR"},
		},
		&cli.StringSliceFlag{
			Name:  "setup-param",
			Usage: "account setup stack parameter as KEY=VALUE (can be specified multiple times)",
		},
		&cli.DurationFlag{
			Name:  "setup-timeout",
			Usage: "maximum wait for the account setup stack",
			Value: migration.DefaultSetupTimeout,
		},
	}
}

func gitlabFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "gitlab-url",
			Usage:   "GitLab base URL",
			Value:   gitlab.DefaultBaseURL,
			EnvVars: []string{"GITLAB_URL"},
		},
		&cli.StringFlag{
			Name:    "gitlab-token",
			Usage:   "GitLab personal access token",
			EnvVars: []string{"GITLAB_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "gitlab-token-secret",
			Usage:   "Secrets Manager id holding the GitLab token, used when --gitlab-token is empty",
			EnvVars: []string{"GITLAB_TOKEN_SECRET"},
		},
	}
}

func newContainer(c *cli.Context) (di.Container, error) {
	container, err := di.New("cli",
		di.WithContext(c.Context),
		di.WithRegion(c.String("region")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create DI container: %w", err)
	}
	return container, nil
}

// newGitLabClient builds a GitLab client, reading the token from Secrets Manager when it
// was not given directly.
func newGitLabClient(c *cli.Context) (*gitlab.Client, error) {
	ctx := c.Context

	token := c.String("gitlab-token")
	if token == "" {
		secret := c.String("gitlab-token-secret")
		if secret == "" {
			return nil, fmt.Errorf("one of --gitlab-token or --gitlab-token-secret is required")
		}

		container, err := newContainer(c)
		if err != nil {
			return nil, err
		}
		secrets, err := di.Get[*services.SecretsManagerService](container)
		if err != nil {
			return nil, err
		}
		if token, err = secrets.GetGitLabToken(ctx, secret); err != nil {
			return nil, err
		}
	}

	return gitlab.NewClient(ctx, c.String("gitlab-url"), token)
}

// driverOptions carries the flag values shared by setup and migrate.
type driverOptions struct {
	Config     migration.Config
	SAMCommand string
}

func parseDriverOptions(c *cli.Context) (driverOptions, error) {
	setupParams, err := utils.ParseParameters(c.StringSlice("setup-param"))
	if err != nil {
		return driverOptions{}, err
	}

	return driverOptions{
		Config: migration.Config{
			StagingDir:      c.String("staging-dir"),
			TemplatesDir:    c.String("templates-dir"),
			WebhookURL:      c.String("webhook-url"),
			SetupParameters: setupParams,
			SetupTimeout:    c.Duration("setup-timeout"),
		},
		SAMCommand: c.String("sam-command"),
	}, nil
}

// newDriver resolves the AWS services from the container and assembles a Driver.
func newDriver(ctx context.Context, container di.Container, opts driverOptions) (*migration.Driver, error) {
	var (
		stacks   *services.CloudFormationService
		buckets  *services.S3Service
		identity *services.IdentityService
	)
	err := container.Invoke(func(cf *services.CloudFormationService, s3 *services.S3Service, id *services.IdentityService) {
		stacks, buckets, identity = cf, s3, id
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve AWS services: %w", err)
	}

	runner := migration.ExecRunner{}
	sam, err := migration.NewSAM(runner, opts.SAMCommand, opts.Config.TemplatesDir)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("templates_dir", sam.TemplatesDir()).
		Str("staging_dir", opts.Config.StagingDir).
		Msg("Creating migration driver")

	opts.Config.TemplatesDir = sam.TemplatesDir()
	return migration.New(opts.Config, migration.Dependencies{
		Stacks:   stacks,
		Buckets:  buckets,
		Identity: identity,
		Packager: sam,
		Git:      migration.NewGitMirror(runner),
	}), nil
}
