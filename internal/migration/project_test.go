package migration

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/savaki/codecommit-migration/internal/errors"
)

func TestStackName(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		project   string
		want      string
	}{
		{name: "sanitized", namespace: "my.team!", project: "repo#1", want: "my-team--repo-1"},
		{name: "already valid", namespace: "platform", project: "api", want: "platform-api"},
		{name: "nested group", namespace: "group", project: "sub/repo", want: "group-sub-repo"},
		{name: "no namespace", namespace: "", project: "soloproject", want: "soloproject"},
		{name: "underscores", namespace: "data_eng", project: "etl_jobs", want: "data-eng-etl-jobs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StackName(tt.namespace, tt.project))
		})
	}
}

func TestProject_Split(t *testing.T) {
	tests := []struct {
		path          string
		wantNamespace string
		wantName      string
	}{
		{path: "my.team/repo", wantNamespace: "my.team", wantName: "repo"},
		{path: "group/sub/repo", wantNamespace: "group", wantName: "sub/repo"},
		{path: "soloproject", wantNamespace: "", wantName: "soloproject"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			namespace, name := Project{PathWithNamespace: tt.path}.Split()
			assert.Equal(t, tt.wantNamespace, namespace)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestDriver_CloneDir(t *testing.T) {
	d := New(Config{StagingDir: "/tmp"}, Dependencies{})

	assert.Equal(t, "/tmp/gitlab/my.team", d.CloneDir(Project{PathWithNamespace: "my.team/repo"}))
	assert.Equal(t, "/tmp/gitlab", d.CloneDir(Project{PathWithNamespace: "soloproject"}))
}

func TestParseProjects(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		input := `
- path_with_namespace: my.team/repo
  ssh_url_to_repo: git@gitlab.example.com:my.team/repo.git
- path_with_namespace: soloproject
  ssh_url_to_repo: git@gitlab.example.com:soloproject.git
`
		projects, err := ParseProjects(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, []Project{
			{PathWithNamespace: "my.team/repo", SSHURLToRepo: "git@gitlab.example.com:my.team/repo.git"},
			{PathWithNamespace: "soloproject", SSHURLToRepo: "git@gitlab.example.com:soloproject.git"},
		}, projects)
	})

	t.Run("json", func(t *testing.T) {
		input := `[{"path_with_namespace":"a/b","ssh_url_to_repo":"git@host:a/b.git","id":42}]`
		projects, err := ParseProjects(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, []Project{{PathWithNamespace: "a/b", SSHURLToRepo: "git@host:a/b.git"}}, projects)
	})

	t.Run("empty", func(t *testing.T) {
		projects, err := ParseProjects(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, projects)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := ParseProjects(strings.NewReader(`[{"path_with_namespace":"a/b"}]`))
		assert.Error(t, err)
	})

	for _, path := range []string{"../x", "./x", "a/../b", "a/..", "..", ".", "/abs/repo", "a//b", "a/"} {
		t.Run("rejects "+path, func(t *testing.T) {
			input := `[{"path_with_namespace":"` + path + `","ssh_url_to_repo":"git@host:x.git"}]`
			_, err := ParseProjects(strings.NewReader(input))
			assert.ErrorIs(t, err, apperrors.ErrInvalidProjectPath)
		})
	}
}

func TestDriver_RepoDir(t *testing.T) {
	d := New(Config{StagingDir: "/tmp"}, Dependencies{})

	cloneDir, repoDir, err := d.repoDir(Project{PathWithNamespace: "group/sub/repo"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/gitlab/group", cloneDir)
	assert.Equal(t, "/tmp/gitlab/group/sub/repo", repoDir)

	cloneDir, repoDir, err = d.repoDir(Project{PathWithNamespace: "soloproject"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/gitlab", cloneDir)
	assert.Equal(t, "/tmp/gitlab/soloproject", repoDir)

	for _, path := range []string{"../x", "./x", "x/..", ".."} {
		_, _, err := d.repoDir(Project{PathWithNamespace: path})
		assert.ErrorIs(t, err, apperrors.ErrInvalidProjectPath, path)
	}
}

func TestWriteProjects(t *testing.T) {
	projects := []Project{{PathWithNamespace: "a/b", SSHURLToRepo: "git@host:a/b.git"}}

	var buf bytes.Buffer
	require.NoError(t, WriteProjects(&buf, projects))

	got, err := ParseProjects(&buf)
	require.NoError(t, err)
	assert.Equal(t, projects, got)
}
