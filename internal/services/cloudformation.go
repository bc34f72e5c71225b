package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	apperrors "github.com/savaki/codecommit-migration/internal/errors"
)

// CloudFormationAPI is the subset of the CloudFormation client used here.
type CloudFormationAPI interface {
	cloudformation.DescribeStacksAPIClient
	cloudformation.ListExportsAPIClient
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
}

type CloudFormationService struct {
	client CloudFormationAPI
}

func NewCloudFormationService(client *cloudformation.Client) *CloudFormationService {
	return &CloudFormationService{client: client}
}

func NewCloudFormationServiceWithClient(client CloudFormationAPI) *CloudFormationService {
	return &CloudFormationService{client: client}
}

// IsComplete reports whether status is one of the successful terminal states.
func IsComplete(status types.StackStatus) bool {
	return status == types.StackStatusCreateComplete || status == types.StackStatusUpdateComplete
}

// FindExport returns the value of the named export, if any stack publishes it.
func (s *CloudFormationService) FindExport(ctx context.Context, name string) (string, bool, error) {
	paginator := cloudformation.NewListExportsPaginator(s.client, &cloudformation.ListExportsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", false, fmt.Errorf("failed to list exports: %w", err)
		}
		for _, export := range page.Exports {
			if aws.ToString(export.Name) == name {
				return aws.ToString(export.Value), true, nil
			}
		}
	}
	return "", false, nil
}

// CreateStackAndWait creates a stack and blocks until creation settles or maxWait
// elapses. It returns the stack status observed afterwards.
func (s *CloudFormationService) CreateStackAndWait(
	ctx context.Context,
	stackName, template string,
	parameters []types.Parameter,
	maxWait time.Duration,
) (types.StackStatus, error) {
	logger := zerolog.Ctx(ctx)

	_, err := s.client.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(stackName),
		TemplateBody: aws.String(template),
		Parameters:   parameters,
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
			types.CapabilityCapabilityNamedIam,
		},
		Tags: []types.Tag{
			{
				Key:   aws.String("ManagedBy"),
				Value: aws.String("codecommit-migration"),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create stack %s: %w", stackName, err)
	}

	logger.Info().
		Str("stack_name", stackName).
		Dur("max_wait", maxWait).
		Msg("Waiting for stack creation to complete")

	waiter := cloudformation.NewStackCreateCompleteWaiter(s.client)
	waitErr := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	}, maxWait)
	if waitErr != nil {
		logger.Warn().Err(waitErr).Str("stack_name", stackName).Msg("Stack create waiter returned error")
	}

	status, err := s.StackStatus(ctx, stackName)
	if err != nil {
		if waitErr != nil {
			return "", fmt.Errorf("failed waiting for stack %s: %w", stackName, waitErr)
		}
		return "", err
	}
	return status, nil
}

// StackStatus returns the current status of a stack.
func (s *CloudFormationService) StackStatus(ctx context.Context, stackName string) (types.StackStatus, error) {
	stack, err := s.describeStack(ctx, stackName)
	if err != nil {
		return "", err
	}
	return stack.StackStatus, nil
}

// StackOutput returns the value of the output with the given key.
func (s *CloudFormationService) StackOutput(ctx context.Context, stackName, key string) (string, bool, error) {
	stack, err := s.describeStack(ctx, stackName)
	if err != nil {
		return "", false, err
	}
	for _, output := range stack.Outputs {
		if aws.ToString(output.OutputKey) == key {
			return aws.ToString(output.OutputValue), true, nil
		}
	}
	return "", false, nil
}

func (s *CloudFormationService) describeStack(ctx context.Context, stackName string) (*types.Stack, error) {
	result, err := s.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isStackNotFound(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrStackNotFound, stackName)
		}
		return nil, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}
	if len(result.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrStackNotFound, stackName)
	}
	return &result.Stacks[0], nil
}

func isStackNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}
