package utils

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// MergeParameters merges multiple parameter maps with later maps having higher precedence
// Returns a CloudFormation parameter list sorted by key
func MergeParameters(pp ...map[string]string) []types.Parameter {
	m := merge(pp...)

	results := make([]types.Parameter, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		results = append(results, types.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(m[k]),
		})
	}
	return results
}

// ShorthandOverrides renders parameters in the Key=Value form accepted by
// `sam deploy --parameter-overrides`, sorted by key.
func ShorthandOverrides(pp ...map[string]string) []string {
	m := merge(pp...)

	results := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		results = append(results, k+"="+m[k])
	}
	return results
}

// LonghandOverrides renders parameters in the ParameterKey=K,ParameterValue=V form accepted
// by `sam build --parameter-overrides`, sorted by key.
func LonghandOverrides(pp ...map[string]string) []string {
	m := merge(pp...)

	results := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		results = append(results, "ParameterKey="+k+",ParameterValue="+m[k])
	}
	return results
}

// ParseParameters parses Key=Value pairs as given on the command line.
func ParseParameters(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected Key=Value", pair)
		}
		m[k] = v
	}
	return m, nil
}

func merge(pp ...map[string]string) map[string]string {
	m := map[string]string{}
	for _, p := range pp {
		maps.Copy(m, p)
	}
	return m
}
