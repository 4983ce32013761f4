package repositories

import (
	"context"

	"github.com/satriahrh/intake-bridge/domain/entities"
)

// IntakePublisher receives the final intake snapshot of every connection
type IntakePublisher interface {
	// PublishIntake hands off one snapshot. Implementations must not block
	// teardown for longer than ctx allows.
	PublishIntake(ctx context.Context, snapshot entities.IntakeSnapshot) error
	Close() error
}
