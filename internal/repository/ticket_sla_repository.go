package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// TicketSlaRepository persists per-ticket SLA records. Every mutating method
// is a conditional update and reports whether a row changed, so concurrent
// callers cannot apply the same transition twice.
type TicketSlaRepository interface {
	GetByTicketID(ctx context.Context, ticketID string) (*domain.TicketSla, error)
	// Upsert replaces policy, priority snapshot and due dates. Achieved
	// timestamps, breach flags and pause accounting keep their stored values
	// and are read back into sla.
	Upsert(ctx context.Context, sla *domain.TicketSla) error
	Pause(ctx context.Context, ticketID string, at time.Time) (bool, error)
	Resume(ctx context.Context, ticketID string, pausedAt time.Time, minutes int) (bool, error)
	RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (bool, error)
	RecordResolution(ctx context.Context, ticketID string, at time.Time) (bool, error)
	MarkBreached(ctx context.Context, slaID string, kind domain.SlaBreachType) (bool, error)
	// DeleteByTicketID stops tracking a ticket.
	DeleteByTicketID(ctx context.Context, ticketID string) (bool, error)
	ListBreachCandidates(ctx context.Context, now time.Time) ([]domain.SlaCandidate, error)
	ListNearBreachCandidates(ctx context.Context, now, until time.Time) ([]domain.SlaCandidate, error)
	ListEscalationCandidates(ctx context.Context) ([]domain.SlaCandidate, error)
}

type ticketSlaRepository struct {
	pool *pgxpool.Pool
}

// NewTicketSlaRepository builds repository.
func NewTicketSlaRepository(pool *pgxpool.Pool) TicketSlaRepository {
	return &ticketSlaRepository{pool: pool}
}

const ticketSlaColumns = `s.id, s.ticket_id, s.sla_policy_id, s.priority_at_assignment,
        s.first_response_due_at, s.next_response_due_at, s.resolution_due_at,
        s.first_responded_at, s.resolved_at,
        s.first_response_breached, s.next_response_breached, s.resolution_breached,
        s.paused_minutes, s.paused_at, s.created_at, s.updated_at`

var breachColumns = map[domain.SlaBreachType]string{
	domain.BreachFirstResponse: "first_response_breached",
	domain.BreachNextResponse:  "next_response_breached",
	domain.BreachResolution:    "resolution_breached",
}

func ticketSlaDest(sla *domain.TicketSla) []any {
	return []any{
		&sla.ID,
		&sla.TicketID,
		&sla.PolicyID,
		&sla.PriorityAtAssignment,
		&sla.FirstResponseDueAt,
		&sla.NextResponseDueAt,
		&sla.ResolutionDueAt,
		&sla.FirstRespondedAt,
		&sla.ResolvedAt,
		&sla.FirstResponseBreached,
		&sla.NextResponseBreached,
		&sla.ResolutionBreached,
		&sla.PausedMinutes,
		&sla.PausedAt,
		&sla.CreatedAt,
		&sla.UpdatedAt,
	}
}

func (r *ticketSlaRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.TicketSla, error) {
	query := `SELECT ` + ticketSlaColumns + ` FROM ticket_slas s WHERE s.ticket_id=$1`
	var sla domain.TicketSla
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(ticketSlaDest(&sla)...); err != nil {
		return nil, err
	}
	return &sla, nil
}

func (r *ticketSlaRepository) Upsert(ctx context.Context, sla *domain.TicketSla) error {
	query := `
        INSERT INTO ticket_slas AS s (ticket_id, sla_policy_id, priority_at_assignment,
            first_response_due_at, next_response_due_at, resolution_due_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (ticket_id) DO UPDATE SET
            sla_policy_id = EXCLUDED.sla_policy_id,
            priority_at_assignment = EXCLUDED.priority_at_assignment,
            first_response_due_at = EXCLUDED.first_response_due_at,
            next_response_due_at = EXCLUDED.next_response_due_at,
            resolution_due_at = EXCLUDED.resolution_due_at,
            updated_at = NOW()
        RETURNING ` + ticketSlaColumns
	return r.pool.QueryRow(ctx, query,
		sla.TicketID,
		sla.PolicyID,
		sla.PriorityAtAssignment,
		sla.FirstResponseDueAt,
		sla.NextResponseDueAt,
		sla.ResolutionDueAt,
	).Scan(ticketSlaDest(sla)...)
}

func (r *ticketSlaRepository) Pause(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	return r.execChanged(ctx, `
        UPDATE ticket_slas SET paused_at=$1, updated_at=NOW()
        WHERE ticket_id=$2 AND paused_at IS NULL`, at, ticketID)
}

func (r *ticketSlaRepository) Resume(ctx context.Context, ticketID string, pausedAt time.Time, minutes int) (bool, error) {
	return r.execChanged(ctx, `
        UPDATE ticket_slas SET paused_minutes = paused_minutes + $1, paused_at=NULL, updated_at=NOW()
        WHERE ticket_id=$2 AND paused_at=$3`, minutes, ticketID, pausedAt)
}

func (r *ticketSlaRepository) RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	return r.execChanged(ctx, `
        UPDATE ticket_slas SET first_responded_at=$1, updated_at=NOW()
        WHERE ticket_id=$2 AND first_responded_at IS NULL`, at, ticketID)
}

func (r *ticketSlaRepository) RecordResolution(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	return r.execChanged(ctx, `
        UPDATE ticket_slas SET resolved_at=$1, updated_at=NOW()
        WHERE ticket_id=$2 AND resolved_at IS NULL`, at, ticketID)
}

func (r *ticketSlaRepository) MarkBreached(ctx context.Context, slaID string, kind domain.SlaBreachType) (bool, error) {
	column, ok := breachColumns[kind]
	if !ok {
		return false, fmt.Errorf("unknown breach type %q", kind)
	}
	query := fmt.Sprintf(`UPDATE ticket_slas SET %s=TRUE, updated_at=NOW() WHERE id=$1 AND %s=FALSE`, column, column)
	return r.execChanged(ctx, query, slaID)
}

func (r *ticketSlaRepository) DeleteByTicketID(ctx context.Context, ticketID string) (bool, error) {
	return r.execChanged(ctx, `DELETE FROM ticket_slas WHERE ticket_id=$1`, ticketID)
}

func (r *ticketSlaRepository) execChanged(ctx context.Context, query string, args ...any) (bool, error) {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketSlaRepository) ListBreachCandidates(ctx context.Context, now time.Time) ([]domain.SlaCandidate, error) {
	args := []any{now}
	condition := `(
            (s.first_response_due_at < $1 AND s.first_responded_at IS NULL AND NOT s.first_response_breached)
         OR (s.next_response_due_at < $1 AND NOT s.next_response_breached)
         OR (s.resolution_due_at < $1 AND s.resolved_at IS NULL AND NOT s.resolution_breached))`
	return r.listCandidates(ctx, condition, args)
}

func (r *ticketSlaRepository) ListNearBreachCandidates(ctx context.Context, now, until time.Time) ([]domain.SlaCandidate, error) {
	args := []any{now, until}
	condition := `(
            (s.first_response_due_at > $1 AND s.first_response_due_at <= $2 AND s.first_responded_at IS NULL AND NOT s.first_response_breached)
         OR (s.next_response_due_at > $1 AND s.next_response_due_at <= $2 AND NOT s.next_response_breached)
         OR (s.resolution_due_at > $1 AND s.resolution_due_at <= $2 AND s.resolved_at IS NULL AND NOT s.resolution_breached))`
	return r.listCandidates(ctx, condition, args)
}

func (r *ticketSlaRepository) ListEscalationCandidates(ctx context.Context) ([]domain.SlaCandidate, error) {
	return r.listCandidates(ctx, `s.paused_at IS NULL`, nil)
}

func (r *ticketSlaRepository) listCandidates(ctx context.Context, condition string, args []any) ([]domain.SlaCandidate, error) {
	terminal := placeholders(&args, toAny(domain.TerminalStatuses()))
	query := fmt.Sprintf(`
        SELECT t.id, t.external_key, t.requester_type, t.requester_id, t.department_id, t.category_id,
               t.assignee_type, t.assignee_id, t.sla_policy_id, t.title, t.status, t.priority, t.source,
               t.created_at, t.updated_at, t.closed_at,
               %s
        FROM ticket_slas s
        JOIN tickets t ON t.id = s.ticket_id
        WHERE t.status NOT IN (%s) AND %s
        ORDER BY s.created_at ASC`, ticketSlaColumns, terminal, condition)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func scanCandidates(rows pgx.Rows) ([]domain.SlaCandidate, error) {
	var result []domain.SlaCandidate
	for rows.Next() {
		var (
			ticket ticketScanTarget
			sla    domain.TicketSla
		)
		dest := append(ticket.dest(), ticketSlaDest(&sla)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result = append(result, domain.SlaCandidate{Ticket: ticket.result(), Sla: sla})
	}
	return result, rows.Err()
}
