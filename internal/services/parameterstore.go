package services

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Config holds the notifier configuration.
type Config struct {
	HTTPEndpoint string
	LogLevel     string
}

// ParameterStore loads the notifier configuration.
type ParameterStore interface {
	GetConfig(ctx context.Context) (*Config, error)
}

type SSMAPI interface {
	ssm.GetParametersByPathAPIClient
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client SSMAPI
	env    string
}

func NewSSMParameterStore(client SSMAPI, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
	}
}

// ParameterPath is the SSM path holding configuration for env.
func ParameterPath(env string) string {
	return fmt.Sprintf("/%s/codecommit-migration", env)
}

// GetConfig loads the configuration stored below ParameterPath. Values missing from SSM
// fall back to the environment.
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := ParameterPath(s.env)

	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}

		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}
	}

	config := &Config{
		HTTPEndpoint: params[path+"/http-endpoint"],
		LogLevel:     params[path+"/log-level"],
	}
	if config.HTTPEndpoint == "" {
		config.HTTPEndpoint = os.Getenv("HTTP_ENDPOINT")
	}
	if config.LogLevel == "" {
		config.LogLevel = os.Getenv("LOG_LEVEL")
	}

	return config, nil
}

// EnvParameterStore implements ParameterStore using environment variables
type EnvParameterStore struct{}

func NewEnvParameterStore() *EnvParameterStore {
	return &EnvParameterStore{}
}

// GetConfig loads the configuration from HTTP_ENDPOINT and LOG_LEVEL.
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return &Config{
		HTTPEndpoint: os.Getenv("HTTP_ENDPOINT"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
	}, nil
}
