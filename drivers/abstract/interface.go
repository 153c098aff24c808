package abstract

import (
	"context"

	"github.com/datazip-inc/filetap/pkg/pipeline"
	"github.com/datazip-inc/filetap/types"
)

type Config interface {
	Validate() error
}

// EnvResolver is implemented by configs that take credential defaults from
// the environment resolved at startup.
type EnvResolver interface {
	ResolveEnv(lookup func(key string) string)
}

type DriverInterface interface {
	GetConfigRef() Config
	Spec() any
	Type() string
	// Setup validates the loaded config and prepares the driver. It must run
	// before Check, Discover and Read.
	Setup(ctx context.Context) error
	Check(ctx context.Context) error
	StreamName() string
	Discover(ctx context.Context) (*types.Schema, error)
	Read(ctx context.Context, handler pipeline.Handler) (*pipeline.Summary, error)
	CloseConnection()
}
