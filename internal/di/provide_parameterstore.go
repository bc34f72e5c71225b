package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/codecommit-migration/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access.
// Returns nil unless ENABLE_SSM is "true"; configuration then comes from the environment.
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if os.Getenv("ENABLE_SSM") != "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation
// Uses SSM Parameter Store when an SSM client is available, environment variables otherwise
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env string) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Debug().Msg("Using environment variables for configuration")
		return services.NewEnvParameterStore()
	}

	logger.Info().
		Str("path", services.ParameterPath(env)).
		Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, env)
}

// ProvideAppConfig loads the notifier configuration from Parameter Store or environment variables
func ProvideAppConfig(ctx context.Context, store services.ParameterStore) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Debug().
		Bool("has_http_endpoint", config.HTTPEndpoint != "").
		Str("log_level", config.LogLevel).
		Msg("Configuration loaded successfully")

	return config, nil
}
