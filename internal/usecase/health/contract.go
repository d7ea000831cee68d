package health

import "context"

// DBPinger checks taxonomy/conversation store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an AI provider (embedding or completion) endpoint.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
