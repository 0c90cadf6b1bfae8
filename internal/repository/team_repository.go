package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// TeamRepository manages assignable teams.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.Team, error)
}

type teamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository constructs repository.
func NewTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &teamRepository{pool: pool}
}

const teamColumns = `id, department_id, name, description, is_active, created_at, updated_at`

func (r *teamRepository) Create(ctx context.Context, team *domain.Team) error {
	const query = `
        INSERT INTO teams (department_id, name, description, is_active)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, team.DepartmentID, team.Name, team.Description, team.IsActive).
		Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	return scanTeam(r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=$1`, id))
}

func (r *teamRepository) ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.Team, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE department_id=$1 AND is_active=TRUE ORDER BY name`, departmentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Team, error) {
		team, err := scanTeam(row)
		if err != nil {
			return domain.Team{}, err
		}
		return *team, nil
	})
}

func scanTeam(row pgx.Row) (*domain.Team, error) {
	var team domain.Team
	if err := row.Scan(&team.ID, &team.DepartmentID, &team.Name, &team.Description, &team.IsActive, &team.CreatedAt, &team.UpdatedAt); err != nil {
		return nil, err
	}
	return &team, nil
}
