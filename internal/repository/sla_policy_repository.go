package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// SlaPolicyRepository reads SLA configuration: policies, their per-priority
// targets and escalation rules.
type SlaPolicyRepository interface {
	// ListActive returns active policies with targets, ascending by sort order.
	ListActive(ctx context.Context) ([]domain.SlaPolicy, error)
	GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error)
	// ListActiveRules returns a policy's active escalation rules in sort order.
	ListActiveRules(ctx context.Context, policyID string) ([]domain.EscalationRule, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSlaPolicyRepository builds repository.
func NewSlaPolicyRepository(pool *pgxpool.Pool) SlaPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const policyColumns = `id, name, description, business_hours_schedule_id, conditions, is_active, sort_order, created_at, updated_at`

func policyDest(policy *domain.SlaPolicy) []any {
	return []any{
		&policy.ID,
		&policy.Name,
		&policy.Description,
		&policy.ScheduleID,
		&policy.Conditions,
		&policy.IsActive,
		&policy.SortOrder,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	}
}

func (r *slaPolicyRepository) ListActive(ctx context.Context) ([]domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE is_active ORDER BY sort_order ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	var policies []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := rows.Scan(policyDest(&policy)...); err != nil {
			rows.Close()
			return nil, err
		}
		policies = append(policies, policy)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range policies {
		targets, err := r.listTargets(ctx, policies[i].ID)
		if err != nil {
			return nil, err
		}
		policies[i].Targets = targets
	}
	return policies, nil
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	var policy domain.SlaPolicy
	if err := r.pool.QueryRow(ctx, query, id).Scan(policyDest(&policy)...); err != nil {
		return nil, err
	}
	targets, err := r.listTargets(ctx, policy.ID)
	if err != nil {
		return nil, err
	}
	rules, err := r.ListActiveRules(ctx, policy.ID)
	if err != nil {
		return nil, err
	}
	policy.Targets = targets
	policy.EscalationRules = rules
	return &policy, nil
}

func (r *slaPolicyRepository) listTargets(ctx context.Context, policyID string) ([]domain.SlaTarget, error) {
	const query = `
        SELECT id, sla_policy_id, priority, first_response_time, next_response_time, resolution_time
        FROM sla_targets WHERE sla_policy_id=$1`
	rows, err := r.pool.Query(ctx, query, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []domain.SlaTarget
	for rows.Next() {
		var target domain.SlaTarget
		if err := rows.Scan(
			&target.ID,
			&target.PolicyID,
			&target.Priority,
			&target.FirstResponseMins,
			&target.NextResponseMins,
			&target.ResolutionMins,
		); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

func (r *slaPolicyRepository) ListActiveRules(ctx context.Context, policyID string) ([]domain.EscalationRule, error) {
	const query = `
        SELECT id, sla_policy_id, breach_type, trigger_type, minutes_before, action, action_config,
               is_active, sort_order, created_at, updated_at
        FROM escalation_rules WHERE sla_policy_id=$1 AND is_active
        ORDER BY sort_order ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		if err := rows.Scan(
			&rule.ID,
			&rule.PolicyID,
			&rule.BreachType,
			&rule.TriggerType,
			&rule.MinutesBefore,
			&rule.Action,
			&rule.ActionConfig,
			&rule.IsActive,
			&rule.SortOrder,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
