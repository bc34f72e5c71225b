package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/codecommit-migration/internal/gitlab"
	"github.com/savaki/codecommit-migration/internal/migration"
	"github.com/urfave/cli/v2"
)

// ProjectsCommand returns the projects command, which writes a projects file from a
// GitLab listing.
func ProjectsCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "group",
			Usage: "GitLab group id or path; all member projects when empty",
		},
		&cli.BoolFlag{
			Name:  "include-archived",
			Usage: "include archived projects",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "file to write, stdout when empty",
		},
	}

	return &cli.Command{
		Name:   "projects",
		Usage:  "List GitLab projects as a projects file for migrate",
		Flags:  append(flags, gitlabFlags()...),
		Action: projectsAction,
	}
}

func projectsAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	client, err := newGitLabClient(c)
	if err != nil {
		return err
	}

	listed, err := client.ListProjects(c.Context, gitlab.ListOptions{
		Group:           c.String("group"),
		IncludeArchived: c.Bool("include-archived"),
	})
	if err != nil {
		return err
	}

	projects := make([]migration.Project, 0, len(listed))
	for _, p := range listed {
		projects = append(projects, p.Descriptor())
	}

	if path := c.String("output"); path != "" {
		if err := saveProjects(path, projects); err != nil {
			return err
		}
	} else if err := migration.WriteProjects(c.App.Writer, projects); err != nil {
		return err
	}

	logger.Info().Int("projects", len(projects)).Msg("Wrote projects")
	return nil
}

func saveProjects(path string, projects []migration.Project) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := migration.WriteProjects(f, projects); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
