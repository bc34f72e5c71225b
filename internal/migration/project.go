package migration

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/savaki/codecommit-migration/internal/errors"
)

var stackNameInvalid = regexp.MustCompile(`[^-a-zA-Z0-9]`)

// Project describes one GitLab repository to migrate. Field names follow the GitLab
// projects API.
type Project struct {
	PathWithNamespace string `yaml:"path_with_namespace" json:"path_with_namespace"`
	SSHURLToRepo      string `yaml:"ssh_url_to_repo" json:"ssh_url_to_repo"`
}

// Split separates the namespace from the project name at the first slash. A path without
// a slash has an empty namespace.
func (p Project) Split() (namespace, name string) {
	namespace, name, ok := strings.Cut(p.PathWithNamespace, "/")
	if !ok {
		return "", p.PathWithNamespace
	}
	return namespace, name
}

// StackName derives the CloudFormation stack name for a project. Every character outside
// [A-Za-z0-9-] becomes '-'.
func StackName(namespace, name string) string {
	joined := name
	if namespace != "" {
		joined = namespace + "-" + name
	}
	return stackNameInvalid.ReplaceAllString(joined, "-")
}

// StackName is the stack name derived from the project path.
func (p Project) StackName() string {
	return StackName(p.Split())
}

func (p Project) validate() error {
	if p.PathWithNamespace == "" {
		return fmt.Errorf("project is missing path_with_namespace")
	}
	if p.SSHURLToRepo == "" {
		return fmt.Errorf("project %s is missing ssh_url_to_repo", p.PathWithNamespace)
	}
	return checkPath(p.PathWithNamespace)
}

// checkPath rejects paths that are absolute or carry empty, "." or ".." segments. The
// path becomes a directory below the clone root, so such segments would escape it.
func checkPath(path string) error {
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "", ".", "..":
			return fmt.Errorf("%w: %q", apperrors.ErrInvalidProjectPath, path)
		}
	}
	return nil
}

// LoadProjects reads a YAML or JSON list of projects. A path of "-" reads stdin.
func LoadProjects(path string) ([]Project, error) {
	if path == "-" {
		return ParseProjects(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open projects file: %w", err)
	}
	defer f.Close()

	return ParseProjects(f)
}

// ParseProjects decodes a YAML or JSON list of projects, preserving order.
func ParseProjects(r io.Reader) ([]Project, error) {
	var projects []Project
	if err := yaml.NewDecoder(r).Decode(&projects); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}

	for _, p := range projects {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// WriteProjects encodes projects as YAML.
func WriteProjects(w io.Writer, projects []Project) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(projects); err != nil {
		return fmt.Errorf("failed to encode projects: %w", err)
	}
	return encoder.Close()
}
