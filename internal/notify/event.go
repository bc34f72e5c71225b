// Package notify turns CodeCommit and CodeBuild events into chat messages.
//
// Events arrive either wrapped in SNS records (EventBridge -> SNS -> Lambda) or delivered
// directly by EventBridge. Decode sniffs the shape of the raw payload and returns a closed
// set of variants; Handler dispatches on them.
package notify

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aws/aws-lambda-go/events"
	"github.com/savaki/codecommit-migration/internal/errors"
)

const (
	SourceSNS        = "aws:sns"
	SourceCodeCommit = "aws.codecommit"
	SourceCodeBuild  = "aws.codebuild"

	DetailTypeRepositoryStateChange  = "CodeCommit Repository State Change"
	DetailTypeCommentOnCommit        = "CodeCommit Comment on Commit"
	DetailTypeCommentOnPullRequest   = "CodeCommit Comment on Pull Request"
	DetailTypePullRequestStateChange = "CodeCommit Pull Request State Change"
	DetailTypeBuildStateChange       = "CodeBuild Build State Change"
)

var repositoryARN = regexp.MustCompile(`^arn:aws:codecommit:.*:\d{12}:(.*)`)

// Event is one of CommitRecords, PullRequestDetail, PlainMessage, DirectCommitChange,
// DirectPullRequestChange or DirectBuildChange.
type Event interface {
	isEvent()
}

type CommitRef struct {
	Repository string
	CommitID   string
}

// CommitRecords comes from a CodeCommit trigger published to SNS.
type CommitRecords struct {
	Commits []CommitRef
}

// PullRequestDetail is an EventBridge notification relayed through SNS.
type PullRequestDetail struct {
	NotificationBody string
}

// PlainMessage is an SNS message with no recognised structure.
type PlainMessage struct {
	Message string
}

type DirectCommitChange struct {
	CommitRef
}

type DirectPullRequestChange struct {
	DetailType       string
	NotificationBody string
}

type DirectBuildChange struct {
	Project  string
	Status   string
	DeepLink string
}

func (CommitRecords) isEvent()           {}
func (PullRequestDetail) isEvent()       {}
func (PlainMessage) isEvent()            {}
func (DirectCommitChange) isEvent()      {}
func (DirectPullRequestChange) isEvent() {}
func (DirectBuildChange) isEvent()       {}

type triggerRecord struct {
	EventSourceARN string `json:"eventSourceARN"`
	CodeCommit     struct {
		References []struct {
			Commit string `json:"commit"`
			Ref    string `json:"ref"`
		} `json:"references"`
	} `json:"codecommit"`
}

type notificationDetail struct {
	NotificationBody string `json:"notificationBody"`
}

type commitChangeDetail struct {
	RepositoryName string `json:"repositoryName"`
	CommitID       string `json:"commitId"`
}

type buildChangeDetail struct {
	ProjectName           string `json:"project-name"`
	BuildStatus           string `json:"build-status"`
	AdditionalInformation struct {
		Logs struct {
			DeepLink string `json:"deep-link"`
		} `json:"logs"`
	} `json:"additional-information"`
}

// Decode classifies a raw event. An event carrying neither Records nor detail-type yields no
// variants and no error. The whole payload is decoded before anything is returned, so an
// unsupported record anywhere fails the event as a whole.
func Decode(raw []byte) ([]Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	if _, ok := fields["Records"]; ok {
		return decodeRecords(raw)
	}
	if _, ok := fields["detail-type"]; ok {
		return decodeDirect(raw)
	}
	return nil, nil
}

func decodeRecords(raw []byte) ([]Event, error) {
	var event events.SNSEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	var result []Event
	for _, record := range event.Records {
		if record.EventSource != SourceSNS {
			return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedEventSource, record.EventSource)
		}

		e, err := decodeSNSMessage(record.SNS.Message)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

func decodeSNSMessage(message string) (Event, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal([]byte(message), &body); err != nil {
		return PlainMessage{Message: message}, nil
	}

	if records, ok := body["Records"]; ok {
		var triggers []triggerRecord
		if err := json.Unmarshal(records, &triggers); err != nil {
			return nil, fmt.Errorf("failed to decode CodeCommit records: %w", err)
		}

		var commits CommitRecords
		for _, trigger := range triggers {
			repository, err := RepositoryName(trigger.EventSourceARN)
			if err != nil {
				return nil, err
			}
			for _, ref := range trigger.CodeCommit.References {
				commits.Commits = append(commits.Commits, CommitRef{
					Repository: repository,
					CommitID:   ref.Commit,
				})
			}
		}
		return commits, nil
	}

	if detail, ok := body["detail"]; ok {
		var d notificationDetail
		if err := json.Unmarshal(detail, &d); err != nil {
			return nil, fmt.Errorf("failed to decode notification detail: %w", err)
		}
		return PullRequestDetail{NotificationBody: d.NotificationBody}, nil
	}

	return PlainMessage{Message: message}, nil
}

func decodeDirect(raw []byte) ([]Event, error) {
	var event events.CloudWatchEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to decode EventBridge event: %w", err)
	}

	switch event.Source {
	case SourceCodeCommit:
		switch event.DetailType {
		case DetailTypeRepositoryStateChange:
			var d commitChangeDetail
			if err := json.Unmarshal(event.Detail, &d); err != nil {
				return nil, fmt.Errorf("failed to decode %s detail: %w", event.DetailType, err)
			}
			return []Event{DirectCommitChange{CommitRef{Repository: d.RepositoryName, CommitID: d.CommitID}}}, nil

		case DetailTypeCommentOnCommit, DetailTypeCommentOnPullRequest, DetailTypePullRequestStateChange:
			var d notificationDetail
			if err := json.Unmarshal(event.Detail, &d); err != nil {
				return nil, fmt.Errorf("failed to decode %s detail: %w", event.DetailType, err)
			}
			return []Event{DirectPullRequestChange{DetailType: event.DetailType, NotificationBody: d.NotificationBody}}, nil
		}
		return nil, nil

	case SourceCodeBuild:
		if event.DetailType != DetailTypeBuildStateChange {
			return nil, nil
		}
		var d buildChangeDetail
		if err := json.Unmarshal(event.Detail, &d); err != nil {
			return nil, fmt.Errorf("failed to decode %s detail: %w", event.DetailType, err)
		}
		return []Event{DirectBuildChange{
			Project:  d.ProjectName,
			Status:   d.BuildStatus,
			DeepLink: d.AdditionalInformation.Logs.DeepLink,
		}}, nil
	}

	return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedEventSource, event.Source)
}

// RepositoryName extracts the repository name from a CodeCommit repository ARN.
func RepositoryName(arn string) (string, error) {
	match := repositoryARN.FindStringSubmatch(arn)
	if match == nil {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidRepositoryARN, arn)
	}
	return match[1], nil
}
