package migration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/savaki/codecommit-migration/internal/errors"
	"github.com/savaki/codecommit-migration/internal/services"
)

type fakeStacks struct {
	exports        map[string]string
	outputs        map[string]string
	createStatus   types.StackStatus
	createErr      error
	exportOnCreate bool

	created   []string
	templates []string
	lookups   int
}

func (f *fakeStacks) FindExport(_ context.Context, name string) (string, bool, error) {
	f.lookups++
	value, ok := f.exports[name]
	return value, ok, nil
}

func (f *fakeStacks) CreateStackAndWait(_ context.Context, stackName, template string, _ []types.Parameter, _ time.Duration) (types.StackStatus, error) {
	f.created = append(f.created, stackName)
	f.templates = append(f.templates, template)
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.exportOnCreate {
		if f.exports == nil {
			f.exports = map[string]string{}
		}
		f.exports[ArtifactsBucketExport] = "artifact-bucket"
	}
	return f.createStatus, nil
}

func (f *fakeStacks) StackOutput(_ context.Context, stackName, key string) (string, bool, error) {
	value, ok := f.outputs[stackName+"/"+key]
	return value, ok, nil
}

type fakeBuckets struct {
	exists bool
}

func (f fakeBuckets) BucketExists(context.Context, string) (bool, error) {
	return f.exists, nil
}

type fakeIdentity struct{}

func (fakeIdentity) Caller(context.Context) (*services.Identity, error) {
	return &services.Identity{Account: "123456789012", ARN: "arn:aws:iam::123456789012:user/dev", Region: "us-east-1"}, nil
}

type fakePackager struct {
	calls      []string
	buildErr   error
	packageErr error
	deployErr  error
	params     []map[string]string
	tags       []map[string]string
}

func (f *fakePackager) Build(_ context.Context, params map[string]string) error {
	f.calls = append(f.calls, "build")
	f.params = append(f.params, params)
	return f.buildErr
}

func (f *fakePackager) Package(_ context.Context, bucket, prefix string) error {
	f.calls = append(f.calls, "package "+bucket+" "+prefix)
	return f.packageErr
}

func (f *fakePackager) Deploy(_ context.Context, stackName string, params, tags map[string]string) error {
	f.calls = append(f.calls, "deploy "+stackName)
	f.params = append(f.params, params)
	f.tags = append(f.tags, tags)
	return f.deployErr
}

type fakeGit struct {
	calls    []string
	cloneDir []string
	cloneErr map[string]error
	pushErr  error
}

func (f *fakeGit) CloneMirror(_ context.Context, dir, url, name string) error {
	f.calls = append(f.calls, "clone "+url)
	f.cloneDir = append(f.cloneDir, dir)
	if err := f.cloneErr[url]; err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(dir, name), 0o755)
}

func (f *fakeGit) CountRefs(context.Context, string) (int, error) {
	return 3, nil
}

func (f *fakeGit) AddRemote(_ context.Context, repoDir, remote, url string) error {
	f.calls = append(f.calls, "remote "+remote+" "+url)
	return nil
}

func (f *fakeGit) PushMirror(_ context.Context, repoDir, remote string) error {
	f.calls = append(f.calls, "push "+filepath.Base(repoDir))
	return f.pushErr
}

func writeSetupTemplate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, AccountSetupTemplate), []byte("Resources: {}\n"), 0o644)
	require.NoError(t, err)
	return dir
}

func newTestDriver(t *testing.T, stacks *fakeStacks, packager *fakePackager, git *fakeGit) (*Driver, string) {
	t.Helper()
	staging := t.TempDir()
	d := New(Config{
		StagingDir:   staging,
		TemplatesDir: writeSetupTemplate(t),
		WebhookURL:   "https://hooks.example.com/chime",
		RunID:        "run-1",
	}, Dependencies{
		Stacks:   stacks,
		Buckets:  fakeBuckets{exists: true},
		Identity: fakeIdentity{},
		Packager: packager,
		Git:      git,
	})
	return d, staging
}

func TestEnsureArtifactBucket_ExistingExport(t *testing.T) {
	stacks := &fakeStacks{exports: map[string]string{ArtifactsBucketExport: "existing-bucket"}}
	d, _ := newTestDriver(t, stacks, &fakePackager{}, &fakeGit{})

	bucket, err := d.EnsureArtifactBucket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "existing-bucket", bucket)
	assert.Empty(t, stacks.created)
}

func TestEnsureArtifactBucket_CreatesSetupStack(t *testing.T) {
	stacks := &fakeStacks{createStatus: types.StackStatusCreateComplete, exportOnCreate: true}
	d, _ := newTestDriver(t, stacks, &fakePackager{}, &fakeGit{})

	bucket, err := d.EnsureArtifactBucket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "artifact-bucket", bucket)
	assert.Equal(t, []string{AccountSetupStackName}, stacks.created)
	assert.Equal(t, []string{"Resources: {}\n"}, stacks.templates)

	// a second run finds the export and creates nothing
	bucket, err = d.EnsureArtifactBucket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "artifact-bucket", bucket)
	assert.Len(t, stacks.created, 1)
}

func TestEnsureArtifactBucket_Failures(t *testing.T) {
	tests := []struct {
		name    string
		stacks  *fakeStacks
		buckets fakeBuckets
		wantErr error
	}{
		{
			name:    "stack rolled back",
			stacks:  &fakeStacks{createStatus: types.StackStatusRollbackComplete},
			buckets: fakeBuckets{exists: true},
			wantErr: apperrors.ErrStackCreateFailed,
		},
		{
			name:    "export still missing",
			stacks:  &fakeStacks{createStatus: types.StackStatusCreateComplete},
			buckets: fakeBuckets{exists: true},
			wantErr: apperrors.ErrExportNotFound,
		},
		{
			name:    "bucket missing",
			stacks:  &fakeStacks{exports: map[string]string{ArtifactsBucketExport: "gone"}},
			buckets: fakeBuckets{exists: false},
			wantErr: apperrors.ErrArtifactBucketNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{
				StagingDir:   t.TempDir(),
				TemplatesDir: writeSetupTemplate(t),
			}, Dependencies{
				Stacks:  tt.stacks,
				Buckets: tt.buckets,
			})

			_, err := d.EnsureArtifactBucket(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEnsureArtifactBucket_StackStatusError(t *testing.T) {
	stacks := &fakeStacks{createStatus: types.StackStatusRollbackComplete}
	d, _ := newTestDriver(t, stacks, &fakePackager{}, &fakeGit{})

	_, err := d.EnsureArtifactBucket(context.Background())

	var statusErr *StackStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, AccountSetupStackName, statusErr.StackName)
	assert.Equal(t, types.StackStatusRollbackComplete, statusErr.Status)
}

func TestMigrate_RejectsEscapingPath(t *testing.T) {
	stacks := &fakeStacks{exports: map[string]string{ArtifactsBucketExport: "bucket"}}
	packager := &fakePackager{}
	git := &fakeGit{}
	d, staging := newTestDriver(t, stacks, packager, git)

	unrelated := filepath.Join(staging, "unrelated.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

	projects := []Project{
		{PathWithNamespace: "team/ok", SSHURLToRepo: "git@gitlab.example.com:team/ok.git"},
		{PathWithNamespace: "../x", SSHURLToRepo: "git@gitlab.example.com:x.git"},
	}

	report, err := d.Migrate(context.Background(), projects)
	require.ErrorIs(t, err, apperrors.ErrInvalidProjectPath)
	assert.Equal(t, projects, report.Skipped)
	assert.Empty(t, report.Migrated)
	assert.Empty(t, packager.calls)
	assert.Empty(t, git.calls)
	assert.FileExists(t, unrelated)
}

func TestMigrateProject_RejectsEscapingPath(t *testing.T) {
	git := &fakeGit{}
	d, staging := newTestDriver(t, &fakeStacks{}, &fakePackager{}, git)

	_, step, err := d.migrateProject(context.Background(), "bucket", Project{PathWithNamespace: "./x", SSHURLToRepo: "git@host:x.git"})
	require.ErrorIs(t, err, apperrors.ErrInvalidProjectPath)
	assert.Equal(t, "prepare", step)
	assert.Empty(t, git.calls)
	assert.DirExists(t, staging)
}

func TestMigrate_Success(t *testing.T) {
	stacks := &fakeStacks{
		exports: map[string]string{ArtifactsBucketExport: "bucket"},
		outputs: map[string]string{
			"my-team-repo-a/" + RepositorySSHOutput: "ssh://git-codecommit/v1/repos/my-team-repo-a",
			"soloproject/" + RepositorySSHOutput:    "ssh://git-codecommit/v1/repos/soloproject",
		},
	}
	packager := &fakePackager{}
	git := &fakeGit{}
	d, staging := newTestDriver(t, stacks, packager, git)

	projects := []Project{
		{PathWithNamespace: "my.team/repo-a", SSHURLToRepo: "git@gitlab.example.com:my.team/repo-a.git"},
		{PathWithNamespace: "soloproject", SSHURLToRepo: "git@gitlab.example.com:soloproject.git"},
	}

	report, err := d.Migrate(context.Background(), projects)
	require.NoError(t, err)
	require.Nil(t, report.Failure)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "bucket", report.ArtifactBucket)
	require.Len(t, report.Migrated, 2)
	assert.Equal(t, "my-team-repo-a", report.Migrated[0].StackName)
	assert.Equal(t, "soloproject", report.Migrated[1].StackName)
	assert.Equal(t, 3, report.Migrated[1].Refs)

	assert.Equal(t, []string{
		"build",
		"package bucket my-team-repo-a",
		"deploy my-team-repo-a",
		"package bucket soloproject",
		"deploy soloproject",
	}, packager.calls)

	assert.Equal(t, []string{
		"clone git@gitlab.example.com:my.team/repo-a.git",
		"remote codecommit ssh://git-codecommit/v1/repos/my-team-repo-a",
		"push repo-a",
		"clone git@gitlab.example.com:soloproject.git",
		"remote codecommit ssh://git-codecommit/v1/repos/soloproject",
		"push soloproject",
	}, git.calls)

	assert.Equal(t, []string{
		filepath.Join(staging, "gitlab", "my.team"),
		filepath.Join(staging, "gitlab"),
	}, git.cloneDir)

	assert.Equal(t, map[string]string{WebhookParameter: "https://hooks.example.com/chime"}, packager.params[0])
	assert.Equal(t, map[string]string{RunTag: "run-1"}, packager.tags[0])

	_, err = os.Stat(filepath.Join(staging, "gitlab", "my.team"))
	assert.True(t, os.IsNotExist(err))
}

func TestMigrate_CloneFailureStopsRun(t *testing.T) {
	stacks := &fakeStacks{exports: map[string]string{ArtifactsBucketExport: "bucket"}}
	packager := &fakePackager{}
	cloneErr := &CommandError{Name: "git", Args: []string{"clone", "--mirror"}, ExitCode: 128, Stderr: "Permission denied"}
	git := &fakeGit{cloneErr: map[string]error{"git@gitlab.example.com:a/one.git": cloneErr}}
	d, _ := newTestDriver(t, stacks, packager, git)

	projects := []Project{
		{PathWithNamespace: "a/one", SSHURLToRepo: "git@gitlab.example.com:a/one.git"},
		{PathWithNamespace: "a/two", SSHURLToRepo: "git@gitlab.example.com:a/two.git"},
	}

	report, err := d.Migrate(context.Background(), projects)
	require.NoError(t, err)
	require.NotNil(t, report.Failure)
	assert.Equal(t, "clone", report.Failure.Step)
	assert.Equal(t, "a/one", report.Failure.Project.PathWithNamespace)
	assert.ErrorIs(t, report.Failure, cloneErr)
	assert.Empty(t, report.Migrated)
	assert.Equal(t, []Project{projects[1]}, report.Skipped)

	assert.Equal(t, []string{"build"}, packager.calls)
	assert.Equal(t, []string{"clone git@gitlab.example.com:a/one.git"}, git.calls)
}

func TestMigrate_PushFailureRecorded(t *testing.T) {
	stacks := &fakeStacks{
		exports: map[string]string{ArtifactsBucketExport: "bucket"},
		outputs: map[string]string{"a-one/" + RepositorySSHOutput: "ssh://one"},
	}
	boom := errors.New("push rejected")
	git := &fakeGit{pushErr: boom}
	d, staging := newTestDriver(t, stacks, &fakePackager{}, git)

	report, err := d.Migrate(context.Background(), []Project{
		{PathWithNamespace: "a/one", SSHURLToRepo: "git@gitlab.example.com:a/one.git"},
	})
	require.NoError(t, err)
	require.NotNil(t, report.Failure)
	assert.Equal(t, "push", report.Failure.Step)
	assert.ErrorIs(t, report.Failure, boom)

	_, err = os.Stat(filepath.Join(staging, "gitlab", "a"))
	assert.True(t, os.IsNotExist(err))
}

func TestMigrate_MissingOutputIsFatal(t *testing.T) {
	stacks := &fakeStacks{exports: map[string]string{ArtifactsBucketExport: "bucket"}}
	git := &fakeGit{}
	d, _ := newTestDriver(t, stacks, &fakePackager{}, git)

	report, err := d.Migrate(context.Background(), []Project{
		{PathWithNamespace: "a/one", SSHURLToRepo: "git@gitlab.example.com:a/one.git"},
		{PathWithNamespace: "a/two", SSHURLToRepo: "git@gitlab.example.com:a/two.git"},
	})
	assert.ErrorIs(t, err, apperrors.ErrStackOutputNotFound)
	assert.Nil(t, report.Failure)
	assert.Len(t, report.Skipped, 1)
	assert.Equal(t, []string{"clone git@gitlab.example.com:a/one.git"}, git.calls)
}

func TestMigrate_BuildFailureSkipsAll(t *testing.T) {
	stacks := &fakeStacks{exports: map[string]string{ArtifactsBucketExport: "bucket"}}
	packager := &fakePackager{buildErr: errors.New("sam build failed")}
	git := &fakeGit{}
	d, _ := newTestDriver(t, stacks, packager, git)

	projects := []Project{{PathWithNamespace: "a/one", SSHURLToRepo: "git@gitlab.example.com:a/one.git"}}
	report, err := d.Migrate(context.Background(), projects)
	require.NoError(t, err)
	require.NotNil(t, report.Failure)
	assert.Equal(t, "build", report.Failure.Step)
	assert.Equal(t, projects, report.Skipped)
	assert.Empty(t, git.calls)
}

func TestMigrate_BootstrapFailureIsFatal(t *testing.T) {
	stacks := &fakeStacks{createStatus: types.StackStatusRollbackComplete}
	packager := &fakePackager{}
	d, _ := newTestDriver(t, stacks, packager, &fakeGit{})

	_, err := d.Migrate(context.Background(), []Project{{PathWithNamespace: "a/one", SSHURLToRepo: "x"}})
	assert.ErrorIs(t, err, apperrors.ErrStackCreateFailed)
	assert.Empty(t, packager.calls)
}

func TestMigrate_CancelledContext(t *testing.T) {
	stacks := &fakeStacks{exports: map[string]string{ArtifactsBucketExport: "bucket"}}
	git := &fakeGit{}
	d, _ := newTestDriver(t, stacks, &fakePackager{}, git)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	projects := []Project{{PathWithNamespace: "a/one", SSHURLToRepo: "x"}}
	report, err := d.Migrate(ctx, projects)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, projects, report.Skipped)
	assert.Empty(t, git.calls)
}

func TestNew_Defaults(t *testing.T) {
	d := New(Config{}, Dependencies{})
	assert.Equal(t, DefaultStagingDir, d.config.StagingDir)
	assert.Equal(t, DefaultSetupTimeout, d.config.SetupTimeout)
	assert.NotEmpty(t, d.config.RunID)
	assert.Equal(t, filepath.Join(DefaultStagingDir, "gitlab"), d.CloneRoot())
}
