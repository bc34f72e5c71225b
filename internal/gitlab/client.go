// Package gitlab wraps the GitLab API client with what a migration needs: listing
// projects and archiving them afterwards.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/codecommit-migration/internal/migration"
	gl "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://gitlab.com"
	perPage        = 100
)

// Project is the subset of a GitLab project a migration cares about.
type Project struct {
	ID                int
	PathWithNamespace string
	SSHURLToRepo      string
	Archived          bool
}

// Descriptor converts p to the descriptor consumed by the migration driver.
func (p Project) Descriptor() migration.Project {
	return migration.Project{
		PathWithNamespace: p.PathWithNamespace,
		SSHURLToRepo:      p.SSHURLToRepo,
	}
}

func fromAPI(p *gl.Project) *Project {
	return &Project{
		ID:                int(p.ID),
		PathWithNamespace: p.PathWithNamespace,
		SSHURLToRepo:      p.SSHURLToRepo,
		Archived:          p.Archived,
	}
}

// ListOptions filters ListProjects.
type ListOptions struct {
	// Group limits the listing to a group and its subgroups. Either a numeric id or a
	// full path.
	Group string

	// IncludeArchived also returns archived projects.
	IncludeArchived bool
}

type Client struct {
	api *gl.Client
}

// NewClient returns a client authenticating with token as a bearer token.
func NewClient(ctx context.Context, baseURL, token string) (*Client, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return NewClientWithHTTP(baseURL, token, oauth2.NewClient(ctx, src))
}

// NewClientWithHTTP builds a client on httpClient. Requests are not retried; a
// failed call fails the command.
func NewClientWithHTTP(baseURL, token string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	api, err := gl.NewOAuthClient(token,
		gl.WithBaseURL(baseURL),
		gl.WithHTTPClient(httpClient),
		gl.WithoutRetries(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &Client{api: api}, nil
}

// ListProjects returns every project visible to the token, following the API's
// page links.
func (c *Client) ListProjects(ctx context.Context, opts ListOptions) (projects []Project, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("group", opts.Group).
			Int("projects", len(projects)).
			Dur("duration", time.Since(begin)).
			Msg("Listed GitLab projects")
	}(time.Now())

	var archived *bool
	if !opts.IncludeArchived {
		archived = gl.Ptr(false)
	}

	page := gl.ListOptions{PerPage: perPage, Page: 1}
	for {
		var (
			batch []*gl.Project
			resp  *gl.Response
		)
		if opts.Group != "" {
			batch, resp, err = c.api.Groups.ListGroupProjects(opts.Group, &gl.ListGroupProjectsOptions{
				ListOptions:      page,
				Archived:         archived,
				IncludeSubGroups: gl.Ptr(true),
			}, gl.WithContext(ctx))
		} else {
			batch, resp, err = c.api.Projects.ListProjects(&gl.ListProjectsOptions{
				ListOptions: page,
				Archived:    archived,
				Membership:  gl.Ptr(true),
			}, gl.WithContext(ctx))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}

		for _, p := range batch {
			projects = append(projects, *fromAPI(p))
		}
		if resp.NextPage == 0 {
			return projects, nil
		}
		page.Page = resp.NextPage
	}
}

// GetProject looks up a project by numeric id or full path.
func (c *Client) GetProject(ctx context.Context, idOrPath string) (*Project, error) {
	project, _, err := c.api.Projects.GetProject(idOrPath, nil, gl.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", idOrPath, err)
	}
	return fromAPI(project), nil
}

// Archive makes a project read-only. Archiving an archived project succeeds.
func (c *Client) Archive(ctx context.Context, idOrPath string) (*Project, error) {
	project, _, err := c.api.Projects.ArchiveProject(idOrPath, gl.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to archive project %s: %w", idOrPath, err)
	}
	return fromAPI(project), nil
}

// StatusCode reports the HTTP status of a failed API call, or 0 when err did not
// come from a GitLab response.
func StatusCode(err error) int {
	var errResp *gl.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}
