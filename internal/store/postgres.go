package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const idfColumns = `id, cluster, project, code, title, description, site, room,
	gallery, documents, diagrams, dfo, location, logo, table_data, created_at, updated_at`

func scanIDF(row interface{ Scan(...any) error }) (IDFRecord, error) {
	var rec IDFRecord
	err := row.Scan(
		&rec.ID, &rec.Cluster, &rec.Project, &rec.Code, &rec.Title,
		&rec.Description, &rec.Site, &rec.Room,
		&rec.Gallery, &rec.Documents, &rec.Diagrams, &rec.DFO,
		&rec.Location, &rec.Logo, &rec.TableData,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

func (s *PostgresStore) GetIDF(ctx context.Context, cluster, project, code string) (IDFRecord, error) {
	query := `SELECT ` + idfColumns + ` FROM idfs WHERE cluster=$1 AND project=$2 AND code=$3`
	return scanIDF(s.db.QueryRowContext(ctx, query, cluster, project, code))
}

func (s *PostgresStore) IDFExists(ctx context.Context, cluster, project, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM idfs WHERE cluster=$1 AND project=$2 AND code=$3)`,
		cluster, project, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check idf: %w", err)
	}
	return exists, nil
}

// ListIDFs returns a tenant's frames ordered by code. A non-empty q filters
// case-insensitively over code, title, site, room and description.
func (s *PostgresStore) ListIDFs(ctx context.Context, cluster, project, q string, limit, skip int) ([]IDFRecord, error) {
	query := `SELECT ` + idfColumns + ` FROM idfs WHERE cluster=$1 AND project=$2`
	args := []any{cluster, project}
	if strings.TrimSpace(q) != "" {
		query += ` AND (code ILIKE $3 OR title ILIKE $3 OR site ILIKE $3 OR room ILIKE $3 OR description ILIKE $3)`
		args = append(args, "%"+strings.TrimSpace(q)+"%")
	}
	query += fmt.Sprintf(` ORDER BY code LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list idfs: %w", err)
	}
	defer rows.Close()

	var records []IDFRecord
	for rows.Next() {
		rec, err := scanIDF(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idf: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) InsertIDF(ctx context.Context, rec IDFRecord) (IDFRecord, error) {
	query := `
		INSERT INTO idfs (cluster, project, code, title, description, site, room,
			gallery, documents, diagrams, dfo, location, logo, table_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + idfColumns
	return scanIDF(s.db.QueryRowContext(ctx, query,
		rec.Cluster, rec.Project, rec.Code, rec.Title, rec.Description, rec.Site, rec.Room,
		rec.Gallery, rec.Documents, rec.Diagrams, rec.DFO, rec.Location, rec.Logo, rec.TableData,
	))
}

// UpdateIDF writes every mutable column of an already-merged record. Partial
// update semantics live in the caller, which merges the request onto the
// stored record before calling this.
func (s *PostgresStore) UpdateIDF(ctx context.Context, rec IDFRecord) (IDFRecord, error) {
	query := `
		UPDATE idfs
		SET title=$4, description=$5, site=$6, room=$7,
			gallery=$8, documents=$9, diagrams=$10, dfo=$11,
			location=$12, logo=$13, table_data=$14, updated_at=NOW()
		WHERE cluster=$1 AND project=$2 AND code=$3
		RETURNING ` + idfColumns
	return scanIDF(s.db.QueryRowContext(ctx, query,
		rec.Cluster, rec.Project, rec.Code, rec.Title, rec.Description, rec.Site, rec.Room,
		rec.Gallery, rec.Documents, rec.Diagrams, rec.DFO, rec.Location, rec.Logo, rec.TableData,
	))
}

// mediaColumns whitelists the columns UpdateMediaColumn may touch. Column
// names never come from request input, but the guard keeps it that way.
var mediaColumns = map[string]struct{}{
	"gallery":    {},
	"documents":  {},
	"diagrams":   {},
	"dfo":        {},
	"location":   {},
	"logo":       {},
	"table_data": {},
}

func (s *PostgresStore) UpdateMediaColumn(ctx context.Context, cluster, project, code, column string, raw []byte) error {
	if _, ok := mediaColumns[column]; !ok {
		return fmt.Errorf("column %q is not a media column", column)
	}
	query := fmt.Sprintf(
		`UPDATE idfs SET %s=$4, updated_at=NOW() WHERE cluster=$1 AND project=$2 AND code=$3`, column)
	result, err := s.db.ExecContext(ctx, query, cluster, project, code, string(raw))
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteIDF(ctx context.Context, cluster, project, code string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM idfs WHERE cluster=$1 AND project=$2 AND code=$3`,
		cluster, project, code)
	if err != nil {
		return false, fmt.Errorf("delete idf: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete idf: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CountIDFs(ctx context.Context, cluster, project string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM idfs WHERE cluster=$1 AND project=$2`,
		cluster, project).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count idfs: %w", err)
	}
	return count, nil
}

// ReplaceDevices swaps a frame's whole device inventory in one transaction.
func (s *PostgresStore) ReplaceDevices(ctx context.Context, cluster, project, code string, devices []Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin devices tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM devices WHERE cluster=$1 AND project=$2 AND idf_code=$3`,
		cluster, project, code); err != nil {
		return fmt.Errorf("clear devices: %w", err)
	}

	for _, d := range devices {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO devices (cluster, project, idf_code, name, model, serial, rack, site, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, cluster, project, code, d.Name, d.Model, d.Serial, d.Rack, d.Site, d.Notes); err != nil {
			return fmt.Errorf("insert device %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit devices tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDevices(ctx context.Context, cluster, project, code string) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, model, serial, rack, site, notes, idf_code
		FROM devices
		WHERE cluster=$1 AND project=$2 AND idf_code=$3
		ORDER BY name, id
	`, cluster, project, code)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Model, &d.Serial, &d.Rack, &d.Site, &d.Notes, &d.IDFCode); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.Cluster = cluster
		d.Project = project
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, is_active, created_at, last_login_at
		FROM users WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.IsActive, &user.CreatedAt, &user.LastLoginAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) TouchUserLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at=NOW() WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("touch user login: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, email, passwordHash, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
	`, email, passwordHash, role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
