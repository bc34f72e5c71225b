package migration

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// Git performs the repository operations of a migration.
type Git interface {
	// CloneMirror creates a bare mirror of url named name inside dir.
	CloneMirror(ctx context.Context, dir, url, name string) error

	// CountRefs returns the number of references in the repository at repoDir.
	CountRefs(ctx context.Context, repoDir string) (int, error)

	// AddRemote registers url as remote on the repository at repoDir.
	AddRemote(ctx context.Context, repoDir, remote, url string) error

	// PushMirror pushes every ref of the repository at repoDir to remote.
	PushMirror(ctx context.Context, repoDir, remote string) error
}

// GitMirror clones and pushes with the git CLI, so the user's SSH agent and
// configuration apply, and inspects the local mirror with go-git.
type GitMirror struct {
	runner Runner
}

func NewGitMirror(runner Runner) *GitMirror {
	return &GitMirror{runner: runner}
}

func (g *GitMirror) CloneMirror(ctx context.Context, dir, url, name string) error {
	out, err := g.runner.Run(ctx, dir, "git", "clone", "--mirror", url, name)
	logOutput(ctx, "git clone", out)
	if err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

func (g *GitMirror) CountRefs(_ context.Context, repoDir string) (int, error) {
	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return 0, fmt.Errorf("failed to open repository %s: %w", repoDir, err)
	}

	refs, err := repo.References()
	if err != nil {
		return 0, fmt.Errorf("failed to list references in %s: %w", repoDir, err)
	}
	defer refs.Close()

	var n int
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count references in %s: %w", repoDir, err)
	}
	return n, nil
}

func (g *GitMirror) AddRemote(_ context.Context, repoDir, remote, url string) error {
	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", repoDir, err)
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: remote,
		URLs: []string{url},
	})
	if err != nil {
		return fmt.Errorf("failed to add remote %s: %w", remote, err)
	}
	return nil
}

func (g *GitMirror) PushMirror(ctx context.Context, repoDir, remote string) error {
	out, err := g.runner.Run(ctx, repoDir, "git", "push", "--mirror", remote)
	logOutput(ctx, "git push", out)
	if err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}
