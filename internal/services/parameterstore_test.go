package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	pages  [][]types.Parameter
	err    error
	tokens []*string
}

func (f *fakeSSM) GetParametersByPath(_ context.Context, params *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	f.tokens = append(f.tokens, params.NextToken)
	if f.err != nil {
		return nil, f.err
	}

	page := len(f.tokens) - 1
	out := &ssm.GetParametersByPathOutput{Parameters: f.pages[page]}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

func TestSSMParameterStore_GetConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARNING")
	fake := &fakeSSM{
		pages: [][]types.Parameter{
			{{Name: aws.String("/prd/codecommit-migration/other"), Value: aws.String("x")}},
			{{Name: aws.String("/prd/codecommit-migration/http-endpoint"), Value: aws.String("https://hooks.chime.aws/incomingwebhooks/abc")}},
		},
	}
	store := NewSSMParameterStore(fake, "prd")

	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.chime.aws/incomingwebhooks/abc", config.HTTPEndpoint)
	assert.Equal(t, "WARNING", config.LogLevel)
	assert.Equal(t, []*string{nil, aws.String("page-1")}, fake.tokens)
}

func TestSSMParameterStore_GetConfigError(t *testing.T) {
	store := NewSSMParameterStore(&fakeSSM{err: errors.New("access denied")}, "prd")

	_, err := store.GetConfig(context.Background())
	assert.ErrorContains(t, err, "/prd/codecommit-migration")
	assert.ErrorContains(t, err, "access denied")
}

func TestEnvParameterStore_GetConfig(t *testing.T) {
	t.Setenv("HTTP_ENDPOINT", "https://example.com/hook")
	t.Setenv("LOG_LEVEL", "DEBUG")

	config, err := NewEnvParameterStore().GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", config.HTTPEndpoint)
	assert.Equal(t, "DEBUG", config.LogLevel)
}
