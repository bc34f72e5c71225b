package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// SetupCommand returns the setup command, which only makes sure the artifact bucket
// stack exists.
func SetupCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the account setup stack if needed and print the artifact bucket",
		Flags: setupFlags(),
		Action: func(c *cli.Context) error {
			opts, err := parseDriverOptions(c)
			if err != nil {
				return err
			}
			opts.SAMCommand = "sam"

			container, err := newContainer(c)
			if err != nil {
				return err
			}
			driver, err := newDriver(c.Context, container, opts)
			if err != nil {
				return err
			}

			bucket, err := driver.EnsureArtifactBucket(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, bucket)
			return nil
		},
	}
}
