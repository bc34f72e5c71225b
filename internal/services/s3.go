package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type S3Service struct {
	client S3API
}

func NewS3Service(client *s3.Client) *S3Service {
	return &S3Service{client: client}
}

func NewS3ServiceWithClient(client S3API) *S3Service {
	return &S3Service{client: client}
}

// BucketExists reports whether the bucket exists and is reachable with the current
// credentials.
func (s *S3Service) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NotFound", "NoSuchBucket":
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to head bucket %s: %w", bucket, err)
	}
	return true, nil
}
