package oplog

import "github.com/goliatone/go-oplog/service"

// Re-export the service package entry point so consumers can do `oplog.New(...)`
// without importing internal wiring helpers.
type (
	Service  = service.Service
	Config   = service.Config
	Commands = service.Commands
	Queries  = service.Queries
)

// New constructs the go-oplog runtime using the provided configuration.
func New(cfg Config) (*Service, error) {
	return service.New(cfg)
}
