package migration

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/shlex"
	"github.com/rs/zerolog"
	"github.com/savaki/codecommit-migration/internal/utils"
)

const (
	AccountSetupTemplate    = "account-setup.yaml"
	CodeEnvironmentTemplate = "code-environment-setup.yaml"
	PackagedTemplate        = CodeEnvironmentTemplate + "-packaged.yaml"

	// WebhookParameter is the template parameter receiving the chat webhook URL.
	WebhookParameter = "HTTPWebHookParam"
)

// SAM drives the AWS SAM CLI against the code environment template.
type SAM struct {
	runner       Runner
	command      []string
	templatesDir string
}

// NewSAM builds a SAM driver. command is split shell-style, so wrappers such as
// "uvx --from aws-sam-cli sam" work.
func NewSAM(runner Runner, command, templatesDir string) (*SAM, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sam command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("sam command is empty")
	}

	dir, err := filepath.Abs(templatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve templates dir %s: %w", templatesDir, err)
	}

	return &SAM{
		runner:       runner,
		command:      argv,
		templatesDir: dir,
	}, nil
}

func (s *SAM) TemplatesDir() string {
	return s.templatesDir
}

// Build runs `sam build` on the code environment template.
func (s *SAM) Build(ctx context.Context, params map[string]string) error {
	args := []string{"build", "--template", filepath.Join(s.templatesDir, CodeEnvironmentTemplate)}
	if overrides := utils.LonghandOverrides(params); len(overrides) > 0 {
		args = append(args, "--parameter-overrides")
		args = append(args, overrides...)
	}
	return s.run(ctx, "build", args...)
}

// Package uploads template artifacts to bucket under prefix and writes PackagedTemplate.
func (s *SAM) Package(ctx context.Context, bucket, prefix string) error {
	return s.run(ctx, "package",
		"package",
		"--s3-bucket", bucket,
		"--template-file", CodeEnvironmentTemplate,
		"--s3-prefix", prefix,
		"--output-template-file", PackagedTemplate,
	)
}

// Deploy deploys PackagedTemplate as stackName. Empty changesets are not an error.
func (s *SAM) Deploy(ctx context.Context, stackName string, params, tags map[string]string) error {
	args := []string{
		"deploy",
		"--template-file", PackagedTemplate,
		"--stack-name", stackName,
		"--capabilities", "CAPABILITY_IAM",
		"--no-fail-on-empty-changeset",
	}
	if overrides := utils.ShorthandOverrides(params); len(overrides) > 0 {
		args = append(args, "--parameter-overrides")
		args = append(args, overrides...)
	}
	if t := utils.ShorthandOverrides(tags); len(t) > 0 {
		args = append(args, "--tags")
		args = append(args, t...)
	}
	return s.run(ctx, "deploy", args...)
}

func (s *SAM) run(ctx context.Context, step string, args ...string) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("step", step).Str("dir", s.templatesDir).Msg("Running sam")

	argv := append(append([]string{}, s.command[1:]...), args...)
	out, err := s.runner.Run(ctx, s.templatesDir, s.command[0], argv...)
	logOutput(ctx, "sam "+step, out)
	if err != nil {
		return fmt.Errorf("sam %s failed: %w", step, err)
	}
	return nil
}
