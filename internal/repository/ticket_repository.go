package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// TicketFilter captures staff search parameters.
type TicketFilter struct {
	DepartmentID *string
	AssigneeID   *string
	SlaPolicyID  *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Sources      []domain.TicketSource
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListOpen returns every non-terminal ticket, optionally restricted to one
	// applied policy.
	ListOpen(ctx context.Context, policyID *string) ([]domain.Ticket, error)
	SetPolicy(ctx context.Context, ticketID string, policyID *string) error
	UpdatePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) error
	UpdateAssignee(ctx context.Context, ticketID string, assignee *domain.ActorRef) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, requester_type, requester_id, department_id, category_id,
               assignee_type, assignee_id, sla_policy_id, title, status, priority, source,
               created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, requester_type, requester_id, department_id, category_id,
            assignee_type, assignee_id, sla_policy_id, title, status, priority, source)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	assigneeType, assigneeID := splitActor(ticket.Assignee)
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.Requester.Kind,
		ticket.Requester.ID,
		ticket.DepartmentID,
		ticket.CategoryID,
		assigneeType,
		assigneeID,
		ticket.SlaPolicyID,
		ticket.Title,
		ticket.Status,
		ticket.Priority,
		ticket.Source,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET department_id=$1, category_id=$2, assignee_type=$3, assignee_id=$4, title=$5,
            status=$6, priority=$7, source=$8, closed_at=$9, updated_at=NOW()
        WHERE id=$10`
	assigneeType, assigneeID := splitActor(ticket.Assignee)
	cmd, err := r.pool.Exec(ctx, query,
		ticket.DepartmentID,
		ticket.CategoryID,
		assigneeType,
		assigneeID,
		ticket.Title,
		ticket.Status,
		ticket.Priority,
		ticket.Source,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE external_key=$1`
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.SlaPolicyID != nil {
		args = append(args, *filter.SlaPolicyID)
		clauses = append(clauses, fmt.Sprintf("sla_policy_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(&args, toAny(filter.Statuses))+")")
	}
	if len(filter.Priorities) > 0 {
		clauses = append(clauses, "priority IN ("+placeholders(&args, toAny(filter.Priorities))+")")
	}
	if len(filter.Sources) > 0 {
		clauses = append(clauses, "source IN ("+placeholders(&args, toAny(filter.Sources))+")")
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(external_key) LIKE $%d)", len(args), len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListOpen(ctx context.Context, policyID *string) ([]domain.Ticket, error) {
	args := []any{}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status NOT IN (` +
		placeholders(&args, toAny(domain.TerminalStatuses())) + `)`
	if policyID != nil {
		args = append(args, *policyID)
		query += fmt.Sprintf(" AND sla_policy_id=$%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) SetPolicy(ctx context.Context, ticketID string, policyID *string) error {
	return r.exec(ctx, `UPDATE tickets SET sla_policy_id=$1, updated_at=NOW() WHERE id=$2`, policyID, ticketID)
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) error {
	return r.exec(ctx, `UPDATE tickets SET priority=$1, updated_at=NOW() WHERE id=$2`, priority, ticketID)
}

func (r *ticketRepository) UpdateAssignee(ctx context.Context, ticketID string, assignee *domain.ActorRef) error {
	assigneeType, assigneeID := splitActor(assignee)
	return r.exec(ctx, `UPDATE tickets SET assignee_type=$1, assignee_id=$2, updated_at=NOW() WHERE id=$3`,
		assigneeType, assigneeID, ticketID)
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ticketScanTarget holds nullable actor columns until they are folded into
// ActorRefs.
type ticketScanTarget struct {
	ticket       domain.Ticket
	assigneeType *string
	assigneeID   *string
}

func (t *ticketScanTarget) dest() []any {
	return []any{
		&t.ticket.ID,
		&t.ticket.ExternalKey,
		&t.ticket.Requester.Kind,
		&t.ticket.Requester.ID,
		&t.ticket.DepartmentID,
		&t.ticket.CategoryID,
		&t.assigneeType,
		&t.assigneeID,
		&t.ticket.SlaPolicyID,
		&t.ticket.Title,
		&t.ticket.Status,
		&t.ticket.Priority,
		&t.ticket.Source,
		&t.ticket.CreatedAt,
		&t.ticket.UpdatedAt,
		&t.ticket.ClosedAt,
	}
}

func (t *ticketScanTarget) result() domain.Ticket {
	t.ticket.Assignee = joinActor(t.assigneeType, t.assigneeID)
	return t.ticket
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var target ticketScanTarget
	if err := row.Scan(target.dest()...); err != nil {
		return nil, err
	}
	ticket := target.result()
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var target ticketScanTarget
		if err := rows.Scan(target.dest()...); err != nil {
			return nil, err
		}
		result = append(result, target.result())
	}
	return result, rows.Err()
}

func splitActor(actor *domain.ActorRef) (*string, *string) {
	if actor == nil || actor.IsZero() {
		return nil, nil
	}
	kind := string(actor.Kind)
	id := actor.ID
	return &kind, &id
}

func joinActor(kind, id *string) *domain.ActorRef {
	if kind == nil || id == nil {
		return nil
	}
	return &domain.ActorRef{Kind: domain.ActorKind(*kind), ID: *id}
}

func placeholders(args *[]any, values []any) string {
	parts := make([]string, len(values))
	for i, value := range values {
		*args = append(*args, value)
		parts[i] = fmt.Sprintf("$%d", len(*args))
	}
	return strings.Join(parts, ",")
}

func toAny[T ~string](values []T) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = string(value)
	}
	return out
}
