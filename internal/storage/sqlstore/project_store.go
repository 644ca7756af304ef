package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

type projectRow struct {
	ID                string          `db:"id"`
	OwnerID           string          `db:"owner_id"`
	Species           string          `db:"species"`
	AreaHectares      float64         `db:"area_hectares"`
	Lat               float64         `db:"gps_lat"`
	Lng               float64         `db:"gps_lng"`
	ImageRef          string          `db:"image_ref"`
	Status            string          `db:"status"`
	VerificationScore sql.NullFloat64 `db:"verification_score"`
	CO2Tons           sql.NullFloat64 `db:"co2_tons"`
	SubmittedAt       int64           `db:"submitted_at"`
	DecidedAt         sql.NullInt64   `db:"decided_at"`
	DecidedBy         string          `db:"decided_by"`
}

const projectColumns = `id, owner_id, species, area_hectares, gps_lat, gps_lng, image_ref, status,
	verification_score, co2_tons, submitted_at, decided_at, decided_by`

func (r projectRow) toProject() (*projects.Project, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt project id %q: %w", r.ID, err)
	}
	p := &projects.Project{
		ID:           id,
		OwnerID:      r.OwnerID,
		Species:      r.Species,
		AreaHectares: r.AreaHectares,
		GPS:          projects.GPSCoord{Lat: r.Lat, Lng: r.Lng},
		ImageRef:     r.ImageRef,
		Status:       projects.Status(r.Status),
		SubmittedAt:  fromNanos(r.SubmittedAt),
		DecidedBy:    r.DecidedBy,
	}
	if r.VerificationScore.Valid {
		v := r.VerificationScore.Float64
		p.VerificationScore = &v
	}
	if r.CO2Tons.Valid {
		v := r.CO2Tons.Float64
		p.CO2Tons = &v
	}
	if r.DecidedAt.Valid {
		t := fromNanos(r.DecidedAt.Int64)
		p.DecidedAt = &t
	}
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// ProjectStore implements projects.Repository on SQL
type ProjectStore struct {
	db *sqlx.DB
}

// NewProjectStore creates a SQL-backed project repository
func NewProjectStore(db *sqlx.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

var _ projects.Repository = (*ProjectStore)(nil)

func (s *ProjectStore) Create(ctx context.Context, p *projects.Project) error {
	query := s.db.Rebind(`INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	var decidedAt sql.NullInt64
	if p.DecidedAt != nil {
		decidedAt = sql.NullInt64{Int64: toNanos(*p.DecidedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		p.ID.String(), p.OwnerID, p.Species, p.AreaHectares, p.GPS.Lat, p.GPS.Lng, p.ImageRef,
		string(p.Status), nullFloat(p.VerificationScore), nullFloat(p.CO2Tons),
		toNanos(p.SubmittedAt), decidedAt, p.DecidedBy)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: duplicate id %s", projects.ErrInvalidProject, p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (s *ProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*projects.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, projects.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return row.toProject()
}

func (s *ProjectStore) List(ctx context.Context, filter projects.ProjectFilter) ([]*projects.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE 1=1`
	var args []interface{}
	if filter.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY submitted_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	out := make([]*projects.Project, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProject()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// CompareAndSetDecision updates the row only while it is still pending
func (s *ProjectStore) CompareAndSetDecision(ctx context.Context, id uuid.UUID, d projects.Decision) (*projects.Project, error) {
	query := s.db.Rebind(`UPDATE projects
		SET status = ?, verification_score = ?, co2_tons = ?, decided_at = ?, decided_by = ?
		WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query,
		string(d.Status), nullFloat(d.Score), nullFloat(d.CO2Tons), toNanos(d.DecidedAt), d.DecidedBy,
		id.String(), string(projects.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to decide project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to decide project: %w", err)
	}
	if n == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, projects.ErrAlreadyDecided
	}
	return s.GetByID(ctx, id)
}
