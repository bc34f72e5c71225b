// Package migration moves GitLab repositories into AWS CodeCommit.
//
// A run makes sure the shared artifact bucket stack exists, then handles projects one
// at a time: mirror clone, package and deploy the per-project stack with SAM, register
// the CodeCommit remote, mirror push, clean up. The first failing command stops the run;
// projects already migrated stay migrated.
package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	apperrors "github.com/savaki/codecommit-migration/internal/errors"
	"github.com/savaki/codecommit-migration/internal/services"
	"github.com/savaki/codecommit-migration/internal/utils"
)

const (
	AccountSetupStackName = "gitlab-migration-account-setup"
	ArtifactsBucketExport = "CodeArtifactsBucket"
	RepositorySSHOutput   = "CodeRepoSSH"
	RemoteName            = "codecommit"
	RunTag                = "MigrationRun"

	DefaultStagingDir   = "/tmp"
	DefaultSetupTimeout = 30 * time.Minute

	stagingSubdir = "gitlab"
)

type Stacks interface {
	FindExport(ctx context.Context, name string) (string, bool, error)
	CreateStackAndWait(ctx context.Context, stackName, template string, parameters []types.Parameter, maxWait time.Duration) (types.StackStatus, error)
	StackOutput(ctx context.Context, stackName, key string) (string, bool, error)
}

type Buckets interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

type Identity interface {
	Caller(ctx context.Context) (*services.Identity, error)
}

type Packager interface {
	Build(ctx context.Context, params map[string]string) error
	Package(ctx context.Context, bucket, prefix string) error
	Deploy(ctx context.Context, stackName string, params, tags map[string]string) error
}

type Config struct {
	// StagingDir is the parent of the local clone area; clones live in StagingDir/gitlab.
	StagingDir string

	// TemplatesDir holds account-setup.yaml.
	TemplatesDir string

	// WebhookURL, when set, is passed to the code environment template.
	WebhookURL string

	// SetupParameters are passed to the account setup stack.
	SetupParameters map[string]string

	// SetupTimeout bounds the wait for the account setup stack.
	SetupTimeout time.Duration

	// RunID tags deployed stacks; generated when empty.
	RunID string
}

// Dependencies are the collaborators of a Driver. Buckets and Identity are optional.
type Dependencies struct {
	Stacks   Stacks
	Buckets  Buckets
	Identity Identity
	Packager Packager
	Git      Git
}

// StackStatusError reports a stack that did not reach a complete state.
type StackStatusError struct {
	StackName string
	Status    types.StackStatus
}

func (e *StackStatusError) Error() string {
	return fmt.Sprintf("stack %s finished with status %s", e.StackName, e.Status)
}

func (e *StackStatusError) Unwrap() error {
	return apperrors.ErrStackCreateFailed
}

// Result describes one migrated project.
type Result struct {
	Project   Project
	StackName string
	SSHURL    string
	Refs      int
	Duration  time.Duration
}

// Failure is the failure that stopped a run.
type Failure struct {
	Project Project
	Step    string
	Err     error
}

func (f *Failure) Error() string {
	if f.Project.PathWithNamespace == "" {
		return fmt.Sprintf("%s: %v", f.Step, f.Err)
	}
	return fmt.Sprintf("%s %s: %v", f.Project.PathWithNamespace, f.Step, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type Report struct {
	RunID          string
	ArtifactBucket string
	Migrated       []Result
	Failure        *Failure
	Skipped        []Project
}

type Driver struct {
	config Config
	deps   Dependencies
}

func New(config Config, deps Dependencies) *Driver {
	if config.StagingDir == "" {
		config.StagingDir = DefaultStagingDir
	}
	if config.SetupTimeout <= 0 {
		config.SetupTimeout = DefaultSetupTimeout
	}
	if config.RunID == "" {
		config.RunID = ksuid.New().String()
	}
	return &Driver{config: config, deps: deps}
}

// CloneRoot is the directory holding all local mirrors.
func (d *Driver) CloneRoot() string {
	return filepath.Join(d.config.StagingDir, stagingSubdir)
}

// CloneDir is the namespace directory a project is cloned into.
func (d *Driver) CloneDir(p Project) string {
	namespace, _ := p.Split()
	return filepath.Join(d.CloneRoot(), namespace)
}

// repoDir returns the namespace and repository directories for p, refusing any that do
// not resolve below CloneRoot.
func (d *Driver) repoDir(p Project) (cloneDir, repoDir string, err error) {
	if err := checkPath(p.PathWithNamespace); err != nil {
		return "", "", err
	}

	_, name := p.Split()
	cloneDir = d.CloneDir(p)
	repoDir = filepath.Join(cloneDir, name)
	for _, dir := range []string{cloneDir, repoDir} {
		rel, err := filepath.Rel(d.CloneRoot(), dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", "", fmt.Errorf("%w: %s resolves outside %s", apperrors.ErrInvalidProjectPath, p.PathWithNamespace, d.CloneRoot())
		}
	}
	if repoDir == d.CloneRoot() {
		return "", "", fmt.Errorf("%w: %s resolves to %s", apperrors.ErrInvalidProjectPath, p.PathWithNamespace, d.CloneRoot())
	}
	return cloneDir, repoDir, nil
}

// EnsureArtifactBucket returns the artifact bucket, creating the account setup stack
// when no stack exports it yet.
func (d *Driver) EnsureArtifactBucket(ctx context.Context) (string, error) {
	logger := zerolog.Ctx(ctx)

	bucket, ok, err := d.deps.Stacks.FindExport(ctx, ArtifactsBucketExport)
	if err != nil {
		return "", err
	}

	if !ok {
		template, err := os.ReadFile(filepath.Join(d.config.TemplatesDir, AccountSetupTemplate))
		if err != nil {
			return "", fmt.Errorf("failed to read account setup template: %w", err)
		}

		logger.Info().
			Str("stack_name", AccountSetupStackName).
			Msg("Artifact bucket export not found, creating account setup stack")

		status, err := d.deps.Stacks.CreateStackAndWait(ctx,
			AccountSetupStackName,
			string(template),
			utils.MergeParameters(d.config.SetupParameters),
			d.config.SetupTimeout,
		)
		if err != nil {
			return "", err
		}
		if !services.IsComplete(status) {
			logger.Error().
				Str("stack_name", AccountSetupStackName).
				Str("status", string(status)).
				Msg("Account setup stack creation failed")
			return "", &StackStatusError{StackName: AccountSetupStackName, Status: status}
		}

		bucket, ok, err = d.deps.Stacks.FindExport(ctx, ArtifactsBucketExport)
		if err != nil {
			return "", err
		}
		if !ok {
			logger.Error().Str("export", ArtifactsBucketExport).Msg("No CloudFormation export found")
			return "", fmt.Errorf("%w: %s", apperrors.ErrExportNotFound, ArtifactsBucketExport)
		}
	}

	if d.deps.Buckets != nil {
		exists, err := d.deps.Buckets.BucketExists(ctx, bucket)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("%w: %s", apperrors.ErrArtifactBucketNotFound, bucket)
		}
	}

	logger.Info().Str("bucket", bucket).Msg("Using artifact bucket")
	return bucket, nil
}

// Migrate migrates projects in order. Fatal infrastructure problems are returned as
// errors. A failing step of a project is logged and recorded in Report.Failure; the
// remaining projects are skipped and Migrate returns a nil error.
func (d *Driver) Migrate(ctx context.Context, projects []Project) (report *Report, err error) {
	logger := zerolog.Ctx(ctx).With().Str("run_id", d.config.RunID).Logger()
	ctx = logger.WithContext(ctx)

	report = &Report{RunID: d.config.RunID}

	defer func(begin time.Time) {
		event := logger.Info()
		if err != nil || report.Failure != nil {
			event = logger.Error()
		}
		event.
			Interface("error", err).
			Int("migrated", len(report.Migrated)).
			Int("skipped", len(report.Skipped)).
			Bool("failed", report.Failure != nil).
			Dur("duration", time.Since(begin)).
			Msg("Migrate completed")
	}(time.Now())

	for i, p := range projects {
		if err := checkPath(p.PathWithNamespace); err != nil {
			report.Skipped = append(report.Skipped, projects...)
			return report, fmt.Errorf("project %d: %w", i+1, err)
		}
	}

	d.logIdentity(ctx)

	bucket, err := d.EnsureArtifactBucket(ctx)
	if err != nil {
		return report, err
	}
	report.ArtifactBucket = bucket

	if err := os.RemoveAll(d.CloneRoot()); err != nil {
		logger.Warn().Err(err).Str("dir", d.CloneRoot()).Msg("Failed to clean staging area")
	}

	if err := d.deps.Packager.Build(ctx, d.templateParameters()); err != nil {
		report.Failure = &Failure{Step: "build", Err: err}
		report.Skipped = append(report.Skipped, projects...)
		logFailure(ctx, report.Failure)
		return report, nil
	}

	for i, p := range projects {
		if err := ctx.Err(); err != nil {
			report.Skipped = append(report.Skipped, projects[i:]...)
			return report, err
		}

		result, step, err := d.migrateProject(ctx, bucket, p)
		if err != nil {
			if isFatal(err) {
				report.Skipped = append(report.Skipped, projects[i+1:]...)
				return report, err
			}
			report.Failure = &Failure{Project: p, Step: step, Err: err}
			report.Skipped = append(report.Skipped, projects[i+1:]...)
			logFailure(ctx, report.Failure)
			return report, nil
		}
		report.Migrated = append(report.Migrated, *result)
	}

	return report, nil
}

func (d *Driver) migrateProject(ctx context.Context, bucket string, p Project) (result *Result, step string, err error) {
	namespace, name := p.Split()
	stackName := StackName(namespace, name)

	logger := zerolog.Ctx(ctx).With().
		Str("project", p.PathWithNamespace).
		Str("stack_name", stackName).
		Logger()
	ctx = logger.WithContext(ctx)

	begin := time.Now()
	logger.Info().Str("namespace", namespace).Str("name", name).Msg("Migrating project")

	cloneDir, repoDir, err := d.repoDir(p)
	if err != nil {
		return nil, "prepare", err
	}
	if err := os.MkdirAll(cloneDir, 0o755); err != nil {
		return nil, "prepare", fmt.Errorf("failed to create clone dir %s: %w", cloneDir, err)
	}
	defer func() {
		if err := os.RemoveAll(cloneDir); err != nil {
			logger.Warn().Err(err).Str("dir", cloneDir).Msg("Failed to remove clone dir")
		}
	}()

	if err := d.deps.Git.CloneMirror(ctx, cloneDir, p.SSHURLToRepo, name); err != nil {
		return nil, "clone", err
	}

	refs, err := d.deps.Git.CountRefs(ctx, repoDir)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to count mirror refs")
	}

	if err := d.deps.Packager.Package(ctx, bucket, stackName); err != nil {
		return nil, "package", err
	}

	if err := d.deps.Packager.Deploy(ctx, stackName, d.templateParameters(), map[string]string{RunTag: d.config.RunID}); err != nil {
		return nil, "deploy", err
	}

	sshURL, ok, err := d.deps.Stacks.StackOutput(ctx, stackName, RepositorySSHOutput)
	if err != nil {
		return nil, "describe", &fatalError{err: err}
	}
	if !ok {
		logger.Error().Msg("No CodeRepoSSH output found for stack, cannot continue")
		return nil, "describe", &fatalError{err: fmt.Errorf("%w: %s in stack %s", apperrors.ErrStackOutputNotFound, RepositorySSHOutput, stackName)}
	}
	logger.Info().Str("ssh_url", sshURL).Msg("Resolved CodeCommit repository")

	if err := d.deps.Git.AddRemote(ctx, repoDir, RemoteName, sshURL); err != nil {
		return nil, "remote", err
	}

	if err := d.deps.Git.PushMirror(ctx, repoDir, RemoteName); err != nil {
		return nil, "push", err
	}

	result = &Result{
		Project:   p,
		StackName: stackName,
		SSHURL:    sshURL,
		Refs:      refs,
		Duration:  time.Since(begin),
	}

	logger.Info().
		Int("refs", refs).
		Dur("duration", result.Duration).
		Msg("Project migrated")

	return result, "", nil
}

func (d *Driver) templateParameters() map[string]string {
	if d.config.WebhookURL == "" {
		return nil
	}
	return map[string]string{WebhookParameter: d.config.WebhookURL}
}

func (d *Driver) logIdentity(ctx context.Context) {
	if d.deps.Identity == nil {
		return
	}

	logger := zerolog.Ctx(ctx)
	identity, err := d.deps.Identity.Caller(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to resolve caller identity")
		return
	}
	logger.Info().
		Str("account", identity.Account).
		Str("arn", identity.ARN).
		Str("region", identity.Region).
		Msg("Resolved AWS identity")
}

// fatalError marks per-project errors that end the run as errors rather than recorded
// failures.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func isFatal(err error) bool {
	var fatal *fatalError
	return errors.As(err, &fatal)
}

func logFailure(ctx context.Context, f *Failure) {
	event := zerolog.Ctx(ctx).Error().
		Err(f.Err).
		Str("step", f.Step).
		Str("project", f.Project.PathWithNamespace)

	var cmdErr *CommandError
	if errors.As(f.Err, &cmdErr) {
		event = event.
			Int("exit_code", cmdErr.ExitCode).
			Str("command", cmdErr.Command()).
			Str("dir", cmdErr.Dir).
			Str("stdout", cmdErr.Stdout).
			Str("stderr", cmdErr.Stderr)
	}
	event.Msg("Migration stopped")
}
