package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Service records immutable audit entries for money-affecting actions.
// Log accepts the surrounding transaction handle so audit rows commit or
// roll back together with the change they describe.
type Service interface {
	Log(ctx context.Context, tx *gorm.DB, entry Entry) error
	ListByTarget(ctx context.Context, targetType, targetID string) ([]AuditLog, error)
}

// Entry is one action to record.
type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

var (
	ErrInvalidAction = errors.New("invalid_audit_action")
	ErrInvalidTarget = errors.New("invalid_audit_target")
)
