package errors

import "errors"

var (
	ErrUnsupportedEventSource = errors.New("unsupported event source")
	ErrInvalidRepositoryARN   = errors.New("invalid CodeCommit repository ARN")
	ErrEmptyEndpoint          = errors.New("HTTP_ENDPOINT is required")
	ErrExportNotFound         = errors.New("CloudFormation export not found")
	ErrStackCreateFailed      = errors.New("stack creation failed")
	ErrStackNotFound          = errors.New("stack not found")
	ErrStackOutputNotFound    = errors.New("stack output not found")
	ErrArtifactBucketNotFound = errors.New("artifact bucket not found")
	ErrInvalidProjectPath     = errors.New("invalid project path")
)
