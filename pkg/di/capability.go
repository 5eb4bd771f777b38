package di

import (
	"errors"
	"fmt"
)

// Capability names a service the Container can hand out through As.
type Capability string

// Capabilities exposed by Container.
const (
	CapabilityDB             Capability = "database/sql.DB"
	CapabilityORM            Capability = "bun.DB"
	CapabilityConnector      Capability = "driver.Connector"
	CapabilityStatementCache Capability = "cache.StatementCache"
	CapabilityMetrics        Capability = "prometheus.Collector"
	CapabilityLifecycle      Capability = "cache.ConnectionLifecycle"
)

// ErrNotSupported is matched by every CapabilityError.
var ErrNotSupported = errors.New("capability not supported")

// CapabilityError reports why a capability could not be provided.
type CapabilityError struct {
	Capability Capability
	Reason     string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %q not supported: %s", e.Capability, e.Reason)
}

// Is reports whether target is ErrNotSupported.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrNotSupported
}
