package di

import "context"

// Region overrides the AWS region from the shared config when non-empty.
type Region string

// Option is a function that configures the dependency injection container.
type Option func(*options)

// WithContext sets the context handed to constructors. Attach the logger to it first.
func WithContext(ctx context.Context) Option {
	return func(opts *options) {
		opts.ctx = ctx
	}
}

func WithRegion(region string) Option {
	return func(opts *options) {
		opts.region = Region(region)
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	ctx       context.Context
	region    Region
	providers []any
}
