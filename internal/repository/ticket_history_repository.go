package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// TicketHistoryRepository stores the audit trail written by ticket changes,
// SLA application and escalations.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	// ListByTicket returns entries oldest first. With change types only
	// entries of those types are returned.
	ListByTicket(ctx context.Context, ticketID string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.ChangedBy.Kind,
		history.ChangedBy.ID,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_history
        WHERE ticket_id=$1 AND ($2::text[] IS NULL OR change_type = ANY($2))
        ORDER BY created_at ASC, id ASC`
	var filter []string
	for _, t := range types {
		filter = append(filter, string(t))
	}
	rows, err := r.pool.Query(ctx, query, ticketID, filter)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TicketHistory, error) {
		var history domain.TicketHistory
		err := row.Scan(
			&history.ID,
			&history.TicketID,
			&history.ChangedBy.Kind,
			&history.ChangedBy.ID,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		)
		return history, err
	})
}
