package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codecommit"
)

// Commit holds the commit fields used in chat messages.
type Commit struct {
	CommitID  string
	Message   string
	Author    string
	Committer string
}

type CodeCommitAPI interface {
	GetCommit(ctx context.Context, params *codecommit.GetCommitInput, optFns ...func(*codecommit.Options)) (*codecommit.GetCommitOutput, error)
}

type CodeCommitService struct {
	client CodeCommitAPI
}

func NewCodeCommitService(client *codecommit.Client) *CodeCommitService {
	return &CodeCommitService{client: client}
}

func NewCodeCommitServiceWithClient(client CodeCommitAPI) *CodeCommitService {
	return &CodeCommitService{client: client}
}

// GetCommit fetches commit metadata by repository name and commit id.
func (s *CodeCommitService) GetCommit(ctx context.Context, repository, commitID string) (*Commit, error) {
	result, err := s.client.GetCommit(ctx, &codecommit.GetCommitInput{
		RepositoryName: aws.String(repository),
		CommitId:       aws.String(commitID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s from repository %s: %w", commitID, repository, err)
	}
	if result.Commit == nil {
		return nil, fmt.Errorf("commit %s not found in repository %s", commitID, repository)
	}

	commit := &Commit{
		CommitID: aws.ToString(result.Commit.CommitId),
		Message:  aws.ToString(result.Commit.Message),
	}
	if result.Commit.Author != nil {
		commit.Author = aws.ToString(result.Commit.Author.Name)
	}
	if result.Commit.Committer != nil {
		commit.Committer = aws.ToString(result.Commit.Committer.Name)
	}
	return commit, nil
}
