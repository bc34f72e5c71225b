package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/codecommit-migration/internal/services"
)

// CommitFetcher loads commit metadata from CodeCommit.
type CommitFetcher interface {
	GetCommit(ctx context.Context, repository, commitID string) (*services.Commit, error)
}

// Poster delivers a chat message.
type Poster interface {
	Post(ctx context.Context, message string) error
}

type Handler struct {
	commits CommitFetcher
	poster  Poster
}

func NewHandler(commits CommitFetcher, poster Poster) *Handler {
	return &Handler{
		commits: commits,
		poster:  poster,
	}
}

// Handle decodes one event and posts the resulting messages.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (err error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().RawJSON("event", raw).Msg("Received event")

	var posted int
	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Int("posted", posted).
			Dur("duration", time.Since(begin)).
			Msg("Handle completed")
	}(time.Now())

	decoded, err := Decode(raw)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to decode event")
		return err
	}

	for _, event := range decoded {
		messages, err := h.messages(ctx, event)
		if err != nil {
			return err
		}
		for _, message := range messages {
			if err := h.poster.Post(ctx, message); err != nil {
				return err
			}
			posted++
		}
	}
	return nil
}

func (h *Handler) messages(ctx context.Context, event Event) ([]string, error) {
	switch e := event.(type) {
	case CommitRecords:
		var messages []string
		for _, ref := range e.Commits {
			commit, err := h.commits.GetCommit(ctx, ref.Repository, ref.CommitID)
			if err != nil {
				return nil, err
			}
			messages = append(messages, commit.Message)
		}
		return messages, nil

	case PullRequestDetail:
		return []string{e.NotificationBody}, nil

	case PlainMessage:
		return []string{e.Message}, nil

	case DirectCommitChange:
		commit, err := h.commits.GetCommit(ctx, e.Repository, e.CommitID)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("%s/%s: %s", commit.Author, commit.Committer, commit.Message)}, nil

	case DirectPullRequestChange:
		return []string{e.NotificationBody}, nil

	case DirectBuildChange:
		return []string{fmt.Sprintf("%s CodeBuild: %s, logs: %s", e.Project, e.Status, e.DeepLink)}, nil

	default:
		return nil, fmt.Errorf("unhandled event variant %T", event)
	}
}
