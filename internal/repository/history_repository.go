package repository

import (
	"context"

	"github.com/spec-kit/crm-admin/internal/domain"
)

// HistoryRepository stores user audit entries.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.HistoryEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error)
}

type historyRepository struct {
	db DBTX
}

// NewHistoryRepository builds repository.
func NewHistoryRepository(db DBTX) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	const query = `
        INSERT INTO history (user_id, action, details, ip)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	return r.db.QueryRow(ctx, query,
		entry.UserID,
		string(entry.Action),
		entry.Details,
		entry.IP,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *historyRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `
        SELECT id, user_id, action, details, ip, created_at
        FROM history WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		var (
			entry  domain.HistoryEntry
			action string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&action,
			&entry.Details,
			&entry.IP,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Action = domain.HistoryAction(action)
		result = append(result, entry)
	}
	return result, rows.Err()
}
