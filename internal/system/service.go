// Package system defines the lifecycle contract background components
// implement so the runtime can start and stop them uniformly.
package system

import "context"

// Service is a long-running component with a graceful shutdown path.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
