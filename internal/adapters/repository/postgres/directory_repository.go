package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/revenue-claims/internal/core/access"
	pgdb "github.com/ogurasousui/revenue-claims/internal/platform/db/postgres"
)

const profileColumns = `id, user_id, company_id, manager_id, created_at, updated_at`

const (
	selectProfileByIDSQL = `SELECT ` + profileColumns + ` FROM employee_profiles WHERE id = $1`

	selectProfileByUserIDSQL = `SELECT ` + profileColumns + ` FROM employee_profiles WHERE user_id = $1`

	selectDirectReportsSQL = `SELECT ` + profileColumns + ` FROM employee_profiles
 WHERE company_id = $1 AND manager_id = ANY($2)
 ORDER BY id`

	// 同時に同じユーザーのプロファイルが作成された場合は既存行を返す。
	upsertProfileSQL = `INSERT INTO employee_profiles (user_id, company_id, manager_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE SET updated_at = employee_profiles.updated_at
RETURNING ` + profileColumns
)

// DirectoryRepository は社員プロファイルと上長関係の PostgreSQL 実装です。
type DirectoryRepository struct {
	pool pgdb.Queryer
}

// NewDirectoryRepository は DirectoryRepository を生成します。
func NewDirectoryRepository(pool pgdb.Queryer) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// FindProfileByID は ID でプロファイルを取得します。
func (r *DirectoryRepository) FindProfileByID(ctx context.Context, id string) (*access.Profile, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanProfile(exec.QueryRow(ctx, selectProfileByIDSQL, id))
	if err != nil {
		return nil, translateDirectoryPgError(err)
	}
	return found, nil
}

// FindProfileByUserID はユーザー ID でプロファイルを取得します。
func (r *DirectoryRepository) FindProfileByUserID(ctx context.Context, userID string) (*access.Profile, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanProfile(exec.QueryRow(ctx, selectProfileByUserIDSQL, userID))
	if err != nil {
		return nil, translateDirectoryPgError(err)
	}
	return found, nil
}

// ListDirectReports は managerIDs の直属部下を返します。
func (r *DirectoryRepository) ListDirectReports(ctx context.Context, companyID string, managerIDs []string) ([]*access.Profile, error) {
	if len(managerIDs) == 0 {
		return nil, nil
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, selectDirectReportsSQL, companyID, managerIDs)
	if err != nil {
		return nil, translateDirectoryPgError(err)
	}
	defer rows.Close()

	var profiles []*access.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, translateDirectoryPgError(err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translateDirectoryPgError(err)
	}
	return profiles, nil
}

// CreateProfile はプロファイルを作成します。同じユーザーのプロファイルが既にあればそれを返します。
func (r *DirectoryRepository) CreateProfile(ctx context.Context, p *access.Profile) (*access.Profile, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, upsertProfileSQL,
		p.UserID,
		p.CompanyID,
		nullableString(p.ManagerID),
		p.CreatedAt,
		p.UpdatedAt,
	)

	created, err := scanProfile(row)
	if err != nil {
		return nil, translateDirectoryPgError(err)
	}
	return created, nil
}

func scanProfile(row pgx.Row) (*access.Profile, error) {
	var (
		p         access.Profile
		managerID sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.CompanyID, &managerID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrProfileNotFound
		}
		return nil, err
	}

	p.ManagerID = stringPtr(managerID)
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return &p, nil
}

func translateDirectoryPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return access.ErrProfileNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode && pgErr.ConstraintName == "employee_profiles_manager_id_fkey" {
		return access.ErrProfileNotFound
	}

	return err
}
