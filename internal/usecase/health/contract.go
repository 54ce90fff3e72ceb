package health

import "context"

// DBPinger checks data store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ModelChecker checks completion service availability.
type ModelChecker interface {
	HealthCheck(ctx context.Context) error
}
