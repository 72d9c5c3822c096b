package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/guidancehub/referral-api/internal/models"
)

const defaultCodeRetries = 3

const referralDetailColumns = `r.id, r.referral_code, r.student_name, r.student_id, r.level, r.grade, r.referral_date,
        r.reason, r.description, r.severity, r.status, r.category, r.notes, r.referred_by, r.created_by,
        r.is_anonymous, r.name_disclosure, r.created_at, r.updated_at,
        u.full_name AS created_by_name, u.role AS created_by_role`

// ReferralRepository manages persistence for referrals, including
// referral code assignment.
type ReferralRepository struct {
	db          *sqlx.DB
	codeRetries int
}

// NewReferralRepository constructs a new repository. codeRetries bounds
// how often a create is replayed after a referral code collision.
func NewReferralRepository(db *sqlx.DB, codeRetries int) *ReferralRepository {
	if codeRetries <= 0 {
		codeRetries = defaultCodeRetries
	}
	return &ReferralRepository{db: db, codeRetries: codeRetries}
}

// List returns referrals matching the filter, newest first, with
// creator display info joined on.
func (r *ReferralRepository) List(ctx context.Context, filter models.ReferralFilter) ([]models.ReferralDetail, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("r.student_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Level != "" {
		where = append(where, fmt.Sprintf("r.level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Severity != "" {
		where = append(where, fmt.Sprintf("r.severity = $%d", len(args)+1))
		args = append(args, filter.Severity)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Grade != "" {
		where = append(where, fmt.Sprintf("r.grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.CreatedBy != "" {
		where = append(where, fmt.Sprintf("r.created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}

	query := fmt.Sprintf(`SELECT %s
        FROM referrals r LEFT JOIN users u ON u.id = r.created_by
        WHERE %s ORDER BY r.created_at DESC`, referralDetailColumns, strings.Join(where, " AND "))
	if filter.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, filter.Limit)
	}

	var referrals []models.ReferralDetail
	if err := r.db.SelectContext(ctx, &referrals, query, args...); err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	return referrals, nil
}

// FindByID fetches a single referral with creator info.
func (r *ReferralRepository) FindByID(ctx context.Context, id string) (*models.ReferralDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM referrals r LEFT JOIN users u ON u.id = r.created_by
        WHERE r.id = $1`, referralDetailColumns)
	var referral models.ReferralDetail
	if err := r.db.GetContext(ctx, &referral, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find referral %s: %w", id, err)
	}
	return &referral, nil
}

// Create inserts a new referral, assigning a REF-YYYYMMDD-NNN code.
// The per-day counter makes sequences dense and collision-free; the
// unique index on referral_code is the safety net, and a violation is
// replayed with a freshly reserved sequence.
func (r *ReferralRepository) Create(ctx context.Context, referral *models.Referral) error {
	if referral.ID == "" {
		referral.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if referral.CreatedAt.IsZero() {
		referral.CreatedAt = now
	}
	referral.UpdatedAt = now
	if referral.Severity == "" {
		referral.Severity = models.SeverityMedium
	}
	if referral.Status == "" {
		referral.Status = models.StatusPending
	}

	query := `INSERT INTO referrals (id, referral_code, student_name, student_id, level, grade, referral_date,
        reason, description, severity, status, category, notes, referred_by, created_by, is_anonymous,
        name_disclosure, created_at, updated_at)
VALUES (:id, :referral_code, :student_name, :student_id, :level, :grade, :referral_date,
        :reason, :description, :severity, :status, :category, :notes, :referred_by, :created_by, :is_anonymous,
        :name_disclosure, :created_at, :updated_at)`

	presetCode := referral.ReferralCode != ""
	for attempt := 0; attempt < r.codeRetries; attempt++ {
		if referral.ReferralCode == "" {
			code, err := r.nextCode(ctx, referral.CreatedAt)
			if err != nil {
				return err
			}
			referral.ReferralCode = code
		}
		_, err := r.db.NamedExecContext(ctx, query, referral)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) && !presetCode {
			referral.ReferralCode = ""
			continue
		}
		return fmt.Errorf("create referral: %w", err)
	}
	return fmt.Errorf("create referral: code collision persisted after %d attempts", r.codeRetries)
}

// nextCode reserves the next same-day sequence number atomically so
// concurrent creates never observe the same count.
func (r *ReferralRepository) nextCode(ctx context.Context, ts time.Time) (string, error) {
	day := ts.Format("20060102")
	var seq int
	query := `INSERT INTO referral_counters (day, seq) VALUES ($1, 1)
ON CONFLICT (day) DO UPDATE SET seq = referral_counters.seq + 1
RETURNING seq`
	if err := r.db.QueryRowxContext(ctx, query, day).Scan(&seq); err != nil {
		return "", fmt.Errorf("reserve referral sequence: %w", err)
	}
	return fmt.Sprintf("REF-%s-%03d", day, seq), nil
}

// Update persists all mutable fields of an existing referral. The
// referral code and creator are immutable and never touched.
func (r *ReferralRepository) Update(ctx context.Context, referral *models.Referral) error {
	referral.UpdatedAt = time.Now().UTC()
	query := `UPDATE referrals SET student_name = :student_name, student_id = :student_id, level = :level,
        grade = :grade, referral_date = :referral_date, reason = :reason, description = :description,
        severity = :severity, status = :status, category = :category, notes = :notes,
        updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, referral)
	if err != nil {
		return fmt.Errorf("update referral %s: %w", referral.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a referral permanently.
func (r *ReferralRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM referrals WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete referral %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Stats aggregates referral counts by level, status and severity.
func (r *ReferralRepository) Stats(ctx context.Context) (*models.ReferralStats, error) {
	query := `SELECT COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN level = 'Elementary' THEN 1 ELSE 0 END),0) AS elementary,
        COALESCE(SUM(CASE WHEN level = 'JHS' THEN 1 ELSE 0 END),0) AS junior_high,
        COALESCE(SUM(CASE WHEN level = 'SHS' THEN 1 ELSE 0 END),0) AS senior_high,
        COALESCE(SUM(CASE WHEN status = 'Pending' THEN 1 ELSE 0 END),0) AS pending,
        COALESCE(SUM(CASE WHEN status = 'Under Review' THEN 1 ELSE 0 END),0) AS under_review,
        COALESCE(SUM(CASE WHEN status = 'For Consultation' THEN 1 ELSE 0 END),0) AS for_consultation,
        COALESCE(SUM(CASE WHEN status = 'Complete' THEN 1 ELSE 0 END),0) AS complete,
        COALESCE(SUM(CASE WHEN severity = 'Low' THEN 1 ELSE 0 END),0) AS low,
        COALESCE(SUM(CASE WHEN severity = 'Medium' THEN 1 ELSE 0 END),0) AS medium,
        COALESCE(SUM(CASE WHEN severity = 'High' THEN 1 ELSE 0 END),0) AS high
FROM referrals`
	var stats models.ReferralStats
	if err := r.db.QueryRowxContext(ctx, query).Scan(
		&stats.Total,
		&stats.ByLevel.Elementary, &stats.ByLevel.JuniorHigh, &stats.ByLevel.SeniorHigh,
		&stats.ByStatus.Pending, &stats.ByStatus.UnderReview, &stats.ByStatus.ForConsultation, &stats.ByStatus.Complete,
		&stats.BySeverity.Low, &stats.BySeverity.Medium, &stats.BySeverity.High,
	); err != nil {
		return nil, fmt.Errorf("referral stats: %w", err)
	}
	return &stats, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
