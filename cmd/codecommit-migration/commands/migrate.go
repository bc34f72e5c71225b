package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/codecommit-migration/internal/gitlab"
	"github.com/savaki/codecommit-migration/internal/migration"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// MigrateCommand returns the migrate command, which mirrors GitLab projects into
// CodeCommit one at a time.
func MigrateCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "projects",
			Aliases: []string{"p"},
			Usage:   "projects file (YAML or JSON list with path_with_namespace and ssh_url_to_repo), - for stdin",
			EnvVars: []string{"PROJECTS_FILE"},
		},
		&cli.StringFlag{
			Name:  "gitlab-group",
			Usage: "migrate every project of this GitLab group instead of a projects file",
		},
		&cli.StringFlag{
			Name:    "staging-dir",
			Usage:   "parent directory of the local clone area",
			Value:   migration.DefaultStagingDir,
			EnvVars: []string{"STAGING_DIR"},
		},
		&cli.StringFlag{
			Name:    "webhook-url",
			Usage:   "chat webhook URL passed to the code environment template",
			EnvVars: []string{"HTTP_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "sam-command",
			Usage:   "SAM CLI invocation, split shell-style",
			Value:   "sam",
			EnvVars: []string{"SAM_COMMAND"},
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print the projects and stack names without migrating",
		},
	}
	flags = append(flags, setupFlags()...)

	return &cli.Command{
		Name:  "migrate",
		Usage: "Mirror GitLab projects into per-project CodeCommit stacks",
		Description: `Ensures the artifact bucket stack exists, builds the code environment template once,
then for every project: clone --mirror, sam package, sam deploy, add the CodeCommit
remote, push --mirror and clean up. The first failing step stops the run.`,
		Flags:  append(flags, gitlabFlags()...),
		Action: migrateAction,
	}
}

func migrateAction(c *cli.Context) error {
	ctx := c.Context

	projects, err := loadProjects(c)
	if err != nil {
		return err
	}

	logger := zerolog.Ctx(ctx)
	if len(projects) == 0 {
		logger.Warn().Msg("No projects to migrate")
		return nil
	}

	if c.Bool("dry-run") {
		for _, p := range projects {
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", p.PathWithNamespace, p.StackName(), p.SSHURLToRepo)
		}
		return nil
	}

	opts, err := parseDriverOptions(c)
	if err != nil {
		return err
	}
	opts.Config.RunID = ksuid.New().String()

	container, err := newContainer(c)
	if err != nil {
		return err
	}
	driver, err := newDriver(ctx, container, opts)
	if err != nil {
		return err
	}

	logger.Info().
		Str("run_id", opts.Config.RunID).
		Int("projects", len(projects)).
		Msg("Starting migration")

	report, err := driver.Migrate(ctx, projects)
	if err != nil {
		return fmt.Errorf("migration aborted: %w", err)
	}

	for _, result := range report.Migrated {
		fmt.Fprintf(c.App.Writer, "migrated\t%s\t%s\t%s\n", result.Project.PathWithNamespace, result.StackName, result.SSHURL)
	}
	if report.Failure != nil {
		fmt.Fprintf(c.App.ErrWriter, "failed\t%s\t%s\n", report.Failure.Project.PathWithNamespace, report.Failure.Step)
		for _, p := range report.Skipped {
			fmt.Fprintf(c.App.ErrWriter, "skipped\t%s\n", p.PathWithNamespace)
		}
		return report.Failure
	}
	return nil
}

// loadProjects reads the projects file, or lists the GitLab group when no file was given.
func loadProjects(c *cli.Context) ([]migration.Project, error) {
	path := c.String("projects")
	group := c.String("gitlab-group")

	switch {
	case path != "" && group != "":
		return nil, fmt.Errorf("--projects and --gitlab-group are mutually exclusive")
	case path != "":
		return migration.LoadProjects(path)
	case group != "":
		client, err := newGitLabClient(c)
		if err != nil {
			return nil, err
		}
		listed, err := client.ListProjects(c.Context, gitlab.ListOptions{Group: group})
		if err != nil {
			return nil, err
		}
		projects := make([]migration.Project, 0, len(listed))
		for _, p := range listed {
			projects = append(projects, p.Descriptor())
		}
		return projects, nil
	default:
		return nil, fmt.Errorf("one of --projects or --gitlab-group is required")
	}
}
