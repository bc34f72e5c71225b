package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsManagerService struct {
	client SecretsManagerAPI
}

func NewSecretsManagerService(client *secretsmanager.Client) *SecretsManagerService {
	return &SecretsManagerService{client: client}
}

func NewSecretsManagerServiceWithClient(client SecretsManagerAPI) *SecretsManagerService {
	return &SecretsManagerService{client: client}
}

// GitLabTokenSecret is the JSON form of a stored GitLab token.
type GitLabTokenSecret struct {
	GitLabToken string `json:"gitlab_token"`
}

// GetSecret retrieves a secret value by path from AWS Secrets Manager
func (s *SecretsManagerService) GetSecret(ctx context.Context, secretPath string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretPath, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretPath)
	}

	return *result.SecretString, nil
}

// GetGitLabToken retrieves a GitLab access token. The secret may hold the bare token or a
// JSON object with a gitlab_token field.
func (s *SecretsManagerService) GetGitLabToken(ctx context.Context, secretPath string) (string, error) {
	value, err := s.GetSecret(ctx, secretPath)
	if err != nil {
		return "", err
	}

	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "{") {
		return value, nil
	}

	var secret GitLabTokenSecret
	if err := json.Unmarshal([]byte(value), &secret); err != nil {
		return "", fmt.Errorf("failed to unmarshal GitLab token secret: %w", err)
	}

	if secret.GitLabToken == "" {
		return "", fmt.Errorf("gitlab_token field is empty in secret %s", secretPath)
	}

	return secret.GitLabToken, nil
}
