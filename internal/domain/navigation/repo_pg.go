package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/navcare/navigator/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Step Repository ===========

type stepRepoPG struct{ pool *pgxpool.Pool }

func NewStepRepoPG(pool *pgxpool.Pool) StepRepository {
	return &stepRepoPG{pool: pool}
}

func (r *stepRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const stepCols = `id, patient_id, cancer_type, journey_stage, step_key, step_name,
	step_description, is_required, status, is_completed, completed_at, completed_by,
	expected_date, due_date, actual_date, institution_name, professional_name,
	result, findings, attachments, notes, created_at, updated_at`

func (r *stepRepoPG) scanStep(row pgx.Row) (*NavigationStep, error) {
	var s NavigationStep
	err := row.Scan(&s.ID, &s.PatientID, &s.CancerType, &s.JourneyStage, &s.StepKey,
		&s.StepName, &s.StepDescription, &s.IsRequired, &s.Status, &s.IsCompleted,
		&s.CompletedAt, &s.CompletedBy, &s.ExpectedDate, &s.DueDate, &s.ActualDate,
		&s.InstitutionName, &s.ProfessionalName, &s.Result,
		&s.Findings, &s.Attachments, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *stepRepoPG) CreateIfAbsent(ctx context.Context, step *NavigationStep) (bool, error) {
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	if step.Findings == nil {
		step.Findings = []string{}
	}
	if step.Attachments == nil {
		step.Attachments = []FileAttachment{}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO navigation_step (id, patient_id, cancer_type, journey_stage, step_key,
			step_name, step_description, is_required, status, is_completed,
			expected_date, due_date, findings, attachments, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (patient_id, journey_stage, step_key) DO NOTHING`,
		step.ID, step.PatientID, step.CancerType, step.JourneyStage, step.StepKey,
		step.StepName, step.StepDescription, step.IsRequired, step.Status, step.IsCompleted,
		step.ExpectedDate, step.DueDate, step.Findings, step.Attachments, step.Notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *stepRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*NavigationStep, error) {
	return r.scanStep(r.conn(ctx).QueryRow(ctx, `SELECT `+stepCols+` FROM navigation_step WHERE id = $1`, id))
}

func (r *stepRepoPG) Update(ctx context.Context, step *NavigationStep, expectedUpdatedAt time.Time) error {
	// RETURNING keeps the caller's step in sync with the server-side
	// timestamp, so the next optimistic update compares the stored value.
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE navigation_step SET status=$2, is_completed=$3, completed_at=$4, completed_by=$5,
			expected_date=$6, due_date=$7, actual_date=$8, institution_name=$9,
			professional_name=$10, result=$11, findings=$12, attachments=$13, notes=$14,
			updated_at=NOW()
		WHERE id = $1 AND updated_at = $15
		RETURNING updated_at`,
		step.ID, step.Status, step.IsCompleted, step.CompletedAt, step.CompletedBy,
		step.ExpectedDate, step.DueDate, step.ActualDate, step.InstitutionName,
		step.ProfessionalName, step.Result, step.Findings, step.Attachments, step.Notes,
		expectedUpdatedAt).Scan(&step.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM navigation_step WHERE id = $1)`, step.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *stepRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, filter StepFilter) ([]*NavigationStep, error) {
	query := `SELECT ` + stepCols + ` FROM navigation_step WHERE patient_id = $1`
	args := []interface{}{patientID}
	idx := 2

	if filter.Stage != "" {
		query += fmt.Sprintf(` AND journey_stage = $%d`, idx)
		args = append(args, filter.Stage)
		idx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.OnlyActive {
		query += ` AND status IN ('PENDING','IN_PROGRESS','OVERDUE')`
	}
	if filter.DueBefore != nil {
		query += fmt.Sprintf(` AND due_date IS NOT NULL AND due_date < $%d`, idx)
		args = append(args, *filter.DueBefore)
		idx++
	}
	if filter.HasFindings {
		query += ` AND jsonb_array_length(findings) > 0`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*NavigationStep
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *stepRepoPG) ListActive(ctx context.Context, limit, offset int) ([]*NavigationStep, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM navigation_step WHERE status IN ('PENDING','IN_PROGRESS','OVERDUE')`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+stepCols+` FROM navigation_step
		WHERE status IN ('PENDING','IN_PROGRESS','OVERDUE')
		ORDER BY created_at ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*NavigationStep
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *stepRepoPG) ListAll(ctx context.Context) ([]*NavigationStep, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+stepCols+` FROM navigation_step ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*NavigationStep
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *stepRepoPG) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE navigation_step SET status = 'OVERDUE', updated_at = NOW()
		WHERE status IN ('PENDING','IN_PROGRESS')
		  AND due_date IS NOT NULL AND due_date < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, first_name, last_name, cancer_type, journey_stage,
	priority_score, priority_category, navigator_id, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.CancerType,
		&p.JourneyStage, &p.PriorityScore, &p.PriorityCategory,
		&p.NavigatorID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) UpdateStage(ctx context.Context, id uuid.UUID, stage JourneyStage) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient SET journey_stage = $2, updated_at = NOW() WHERE id = $1`, id, stage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
