package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// DepartmentRepository manages departments, which SLA policy conditions
// reference by id.
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	ListActive(ctx context.Context) ([]domain.Department, error)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

const departmentColumns = `id, name, description, is_active, created_at, updated_at`

func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	const query = `
        INSERT INTO departments (name, description, is_active)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, dept.Name, dept.Description, dept.IsActive).
		Scan(&dept.ID, &dept.CreatedAt, &dept.UpdatedAt)
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	return scanDepartment(r.pool.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id=$1`, id))
}

func (r *departmentRepository) ListActive(ctx context.Context) ([]domain.Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+departmentColumns+` FROM departments WHERE is_active = TRUE ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *dept)
	}
	return result, rows.Err()
}

func scanDepartment(row pgx.Row) (*domain.Department, error) {
	var dept domain.Department
	if err := row.Scan(&dept.ID, &dept.Name, &dept.Description, &dept.IsActive, &dept.CreatedAt, &dept.UpdatedAt); err != nil {
		return nil, err
	}
	return &dept, nil
}
