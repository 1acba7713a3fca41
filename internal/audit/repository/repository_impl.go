package repository

import (
	"context"

	auditdomain "github.com/chapterly/revenue/internal/audit/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, entry *auditdomain.AuditLog) error
	ListByTarget(ctx context.Context, tx *gorm.DB, targetType, targetID string) ([]auditdomain.AuditLog, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, entry *auditdomain.AuditLog) error {
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListByTarget(ctx context.Context, tx *gorm.DB, targetType, targetID string) ([]auditdomain.AuditLog, error) {
	var logs []auditdomain.AuditLog
	err := tx.WithContext(ctx).Raw(
		`SELECT id, actor_type, actor_id, action, target_type, target_id, metadata, created_at
		 FROM audit_logs
		 WHERE target_type = ? AND target_id = ?
		 ORDER BY created_at DESC, id DESC`,
		targetType, targetID,
	).Scan(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
