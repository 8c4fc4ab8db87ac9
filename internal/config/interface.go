package config

import "context"

// Loader turns pipeline definition files into the unified Model. Each
// supported configuration format provides its own implementation.
type Loader interface {
	Load(ctx context.Context, path string) (*Model, error)
}
