package commands

import (
	"fmt"

	"github.com/savaki/codecommit-migration/internal/migration"
	"github.com/urfave/cli/v2"
)

// StackNameCommand prints the stack name derived for each path_with_namespace argument.
func StackNameCommand() *cli.Command {
	return &cli.Command{
		Name:      "stack-name",
		Usage:     "Print the CloudFormation stack name for GitLab project paths",
		ArgsUsage: "path_with_namespace...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one path_with_namespace is required")
			}
			for _, path := range c.Args().Slice() {
				p := migration.Project{PathWithNamespace: path}
				fmt.Fprintln(c.App.Writer, p.StackName())
			}
			return nil
		},
	}
}
