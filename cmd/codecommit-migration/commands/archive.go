package commands

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/savaki/codecommit-migration/internal/gitlab"
	"github.com/savaki/codecommit-migration/internal/migration"
	"github.com/urfave/cli/v2"
)

// ArchiveCommand returns the archive command, which makes migrated GitLab projects
// read-only.
func ArchiveCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "projects",
			Aliases: []string{"p"},
			Usage:   "projects file listing the projects to archive, - for stdin",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print the projects without archiving them",
		},
	}

	return &cli.Command{
		Name:      "archive",
		Usage:     "Archive GitLab projects after migration",
		ArgsUsage: "[path_with_namespace...]",
		Flags:     append(flags, gitlabFlags()...),
		Action:    archiveAction,
	}
}

func archiveAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	paths := c.Args().Slice()
	if file := c.String("projects"); file != "" {
		projects, err := migration.LoadProjects(file)
		if err != nil {
			return err
		}
		for _, p := range projects {
			paths = append(paths, p.PathWithNamespace)
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("no projects given")
	}

	if c.Bool("dry-run") {
		for _, path := range paths {
			fmt.Fprintln(c.App.Writer, path)
		}
		return nil
	}

	client, err := newGitLabClient(c)
	if err != nil {
		return err
	}

	for _, path := range paths {
		current, err := client.GetProject(c.Context, path)
		if gitlab.StatusCode(err) == http.StatusNotFound {
			return fmt.Errorf("project %s not found or not visible to the token: %w", path, err)
		} else if err != nil {
			return err
		}
		if current.Archived {
			logger.Info().
				Int("id", current.ID).
				Str("project", current.PathWithNamespace).
				Msg("Project already archived")
			continue
		}

		project, err := client.Archive(c.Context, strconv.Itoa(current.ID))
		if err != nil {
			return err
		}
		logger.Info().
			Int("id", project.ID).
			Str("project", project.PathWithNamespace).
			Bool("archived", project.Archived).
			Msg("Archived project")
	}
	return nil
}
