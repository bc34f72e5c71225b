package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Identity describes the AWS principal the tool runs as.
type Identity struct {
	Account string
	ARN     string
	Region  string
}

type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type IdentityService struct {
	client STSAPI
	region string
}

func NewIdentityService(cfg aws.Config, client *sts.Client) *IdentityService {
	return &IdentityService{client: client, region: cfg.Region}
}

func NewIdentityServiceWithClient(client STSAPI, region string) *IdentityService {
	return &IdentityService{client: client, region: region}
}

func (s *IdentityService) Caller(ctx context.Context) (*Identity, error) {
	result, err := s.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}
	return &Identity{
		Account: aws.ToString(result.Account),
		ARN:     aws.ToString(result.Arn),
		Region:  s.region,
	}, nil
}
