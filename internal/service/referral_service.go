package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/guidancehub/referral-api/internal/models"
	appErrors "github.com/guidancehub/referral-api/pkg/errors"
	"github.com/guidancehub/referral-api/pkg/export"
)

const statsCacheKey = "referrals:stats"

type referralRepository interface {
	List(ctx context.Context, filter models.ReferralFilter) ([]models.ReferralDetail, error)
	FindByID(ctx context.Context, id string) (*models.ReferralDetail, error)
	Create(ctx context.Context, referral *models.Referral) error
	Update(ctx context.Context, referral *models.Referral) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.ReferralStats, error)
}

type categoryRegistry interface {
	ActiveExists(ctx context.Context, name string) (bool, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type referralMetrics interface {
	ReferralCreated(source string)
}

// ReferralService mediates store access per caller role.
type ReferralService struct {
	repo        referralRepository
	categories  categoryRegistry
	cache       statsCache
	metrics     referralMetrics
	validator   *validator.Validate
	logger      *zap.Logger
	statsTTL    time.Duration
	recentLimit int
}

// NewReferralService constructs the service. cache and metrics may be nil.
func NewReferralService(repo referralRepository, categories categoryRegistry, cache statsCache, metrics referralMetrics, validate *validator.Validate, logger *zap.Logger, statsTTL time.Duration, recentLimit int) *ReferralService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recentLimit <= 0 {
		recentLimit = 5
	}
	svc := &ReferralService{
		repo:        repo,
		categories:  categories,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		statsTTL:    statsTTL,
		recentLimit: recentLimit,
	}
	registerReferralValidations(svc.validator)
	return svc
}

func registerReferralValidations(v *validator.Validate) {
	v.RegisterValidation("referral_level", func(fl validator.FieldLevel) bool { //nolint:errcheck
		switch models.ReferralLevel(fl.Field().String()) {
		case models.LevelElementary, models.LevelJuniorHigh, models.LevelSeniorHigh:
			return true
		default:
			return false
		}
	})
	v.RegisterValidation("referral_severity", func(fl validator.FieldLevel) bool { //nolint:errcheck
		switch models.ReferralSeverity(fl.Field().String()) {
		case models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
			return true
		default:
			return false
		}
	})
	v.RegisterValidation("referral_status", func(fl validator.FieldLevel) bool { //nolint:errcheck
		switch models.ReferralStatus(fl.Field().String()) {
		case models.StatusPending, models.StatusUnderReview, models.StatusForConsultation, models.StatusComplete:
			return true
		default:
			return false
		}
	})
}

// CreateReferralRequest describes the staff create payload.
type CreateReferralRequest struct {
	StudentName  string    `json:"studentName" validate:"required"`
	StudentID    *string   `json:"studentId"`
	Level        string    `json:"level" validate:"required,referral_level"`
	Grade        string    `json:"grade" validate:"required"`
	ReferralDate time.Time `json:"referralDate" validate:"required"`
	Reason       string    `json:"reason" validate:"required"`
	Description  string    `json:"description"`
	Severity     string    `json:"severity" validate:"omitempty,referral_severity"`
	Category     *string   `json:"category"`
}

// UpdateReferralRequest describes the update payload. All fields are
// optional; absent fields leave the record untouched.
type UpdateReferralRequest struct {
	StudentName  *string    `json:"studentName" validate:"omitempty,min=1"`
	StudentID    *string    `json:"studentId"`
	Level        *string    `json:"level" validate:"omitempty,referral_level"`
	Grade        *string    `json:"grade"`
	ReferralDate *time.Time `json:"referralDate"`
	Reason       *string    `json:"reason" validate:"omitempty,min=1"`
	Description  *string    `json:"description"`
	Severity     *string    `json:"severity" validate:"omitempty,referral_severity"`
	Status       *string    `json:"status" validate:"omitempty,referral_status"`
	Category     *string    `json:"category"`
	Notes        *string    `json:"notes"`
}

// ReferralListRequest carries the list query filters. The frontends
// send "all" for unset dropdowns.
type ReferralListRequest struct {
	Search   string
	Level    string
	Severity string
	Status   string
	Grade    string
}

// Mutable field sets per role. Adviser owners may edit intake details
// only; status, notes and category stay with the counseling staff.
// Disallowed fields are stripped, not rejected.
var (
	adviserMutableFields = map[string]struct{}{
		"studentName": {}, "studentId": {}, "level": {}, "grade": {},
		"referralDate": {}, "reason": {}, "description": {}, "severity": {},
	}
	privilegedMutableFields = map[string]struct{}{
		"studentName": {}, "studentId": {}, "level": {}, "grade": {},
		"referralDate": {}, "reason": {}, "description": {}, "severity": {},
		"status": {}, "category": {}, "notes": {},
	}
)

// restrict intersects the payload with an allowed field set.
func (req UpdateReferralRequest) restrict(allowed map[string]struct{}) UpdateReferralRequest {
	masked := UpdateReferralRequest{}
	if _, ok := allowed["studentName"]; ok {
		masked.StudentName = req.StudentName
	}
	if _, ok := allowed["studentId"]; ok {
		masked.StudentID = req.StudentID
	}
	if _, ok := allowed["level"]; ok {
		masked.Level = req.Level
	}
	if _, ok := allowed["grade"]; ok {
		masked.Grade = req.Grade
	}
	if _, ok := allowed["referralDate"]; ok {
		masked.ReferralDate = req.ReferralDate
	}
	if _, ok := allowed["reason"]; ok {
		masked.Reason = req.Reason
	}
	if _, ok := allowed["description"]; ok {
		masked.Description = req.Description
	}
	if _, ok := allowed["severity"]; ok {
		masked.Severity = req.Severity
	}
	if _, ok := allowed["status"]; ok {
		masked.Status = req.Status
	}
	if _, ok := allowed["category"]; ok {
		masked.Category = req.Category
	}
	if _, ok := allowed["notes"]; ok {
		masked.Notes = req.Notes
	}
	return masked
}

// Create stores a staff referral on behalf of the authenticated caller.
func (s *ReferralService) Create(ctx context.Context, actor *models.JWTClaims, req CreateReferralRequest) (*models.ReferralDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "missing required fields: studentName, level, grade, reason, and referralDate are required")
	}
	if err := s.checkCategory(ctx, req.Category); err != nil {
		return nil, err
	}

	level := models.ReferralLevel(req.Level)
	severity := models.ReferralSeverity(req.Severity)
	if severity == "" {
		severity = models.SeverityMedium
	}
	createdBy := actor.UserID
	referral := &models.Referral{
		StudentName:  req.StudentName,
		StudentID:    req.StudentID,
		Level:        &level,
		Grade:        &req.Grade,
		ReferralDate: req.ReferralDate,
		Reason:       req.Reason,
		Description:  req.Description,
		Severity:     severity,
		Status:       models.StatusPending,
		Category:     normalizeCategory(req.Category),
		CreatedBy:    &createdBy,
		IsAnonymous:  false,
	}
	if err := s.repo.Create(ctx, referral); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create referral")
	}
	if s.metrics != nil {
		s.metrics.ReferralCreated("staff")
	}
	s.invalidateStats(ctx)
	s.logger.Info("referral created", zap.String("referral_code", referral.ReferralCode), zap.String("created_by", actor.UserID))

	return s.detail(ctx, referral.ID)
}

// ListMine returns the caller's own referrals with filters applied.
func (s *ReferralService) ListMine(ctx context.Context, actor *models.JWTClaims, req ReferralListRequest) ([]models.ReferralDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := filterFromRequest(req)
	filter.CreatedBy = actor.UserID
	referrals, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list referrals")
	}
	return referrals, nil
}

// ListAll returns every referral; counseling staff only.
func (s *ReferralService) ListAll(ctx context.Context, actor *models.JWTClaims, req ReferralListRequest) ([]models.ReferralDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.IsPrivileged() {
		return nil, appErrors.ErrForbidden
	}
	referrals, err := s.repo.List(ctx, filterFromRequest(req))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list referrals")
	}
	return referrals, nil
}

// Recent returns the latest referrals; advisers only see their own.
func (s *ReferralService) Recent(ctx context.Context, actor *models.JWTClaims) ([]models.ReferralDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ReferralFilter{Limit: s.recentLimit}
	if actor.Role == models.RoleAdviser {
		filter.CreatedBy = actor.UserID
	}
	referrals, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recent referrals")
	}
	return referrals, nil
}

// Stats aggregates counts for the dashboard; counseling staff only.
// Served from cache when fresh.
func (s *ReferralService) Stats(ctx context.Context, actor *models.JWTClaims) (*models.ReferralStats, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.IsPrivileged() {
		return nil, appErrors.ErrForbidden
	}

	if s.cache != nil {
		var cached models.ReferralStats
		if err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate referral stats")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey, stats, s.statsTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// Get returns a referral to counseling staff or its owner.
func (s *ReferralService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ReferralDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	referral, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsPrivileged() && !isOwner(referral, actor) {
		return nil, appErrors.ErrForbidden
	}
	return referral, nil
}

// Update applies a role-restricted update to an existing referral.
func (s *ReferralService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateReferralRequest) (*models.ReferralDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid referral payload")
	}

	existing, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	privileged := actor.Role.IsPrivileged()
	if !privileged && !isOwner(existing, actor) {
		return nil, appErrors.ErrForbidden
	}

	allowed := privilegedMutableFields
	if !privileged {
		allowed = adviserMutableFields
	}
	masked := req.restrict(allowed)

	if err := s.checkCategory(ctx, masked.Category); err != nil {
		return nil, err
	}

	referral := existing.Referral
	applyUpdate(&referral, masked)

	if err := s.repo.Update(ctx, &referral); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "referral not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update referral")
	}
	s.invalidateStats(ctx)

	return s.detail(ctx, referral.ID)
}

// Delete hard-deletes a referral; admins only.
func (s *ReferralService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "referral not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete referral")
	}
	s.invalidateStats(ctx)
	return nil
}

// ExportDataset flattens the filtered referral list for CSV/PDF export;
// counseling staff only.
func (s *ReferralService) ExportDataset(ctx context.Context, actor *models.JWTClaims, req ReferralListRequest) (export.Dataset, error) {
	referrals, err := s.ListAll(ctx, actor, req)
	if err != nil {
		return export.Dataset{}, err
	}

	dataset := export.Dataset{
		Headers: []string{"Code", "Student", "Level", "Grade", "Date", "Reason", "Severity", "Status", "Category", "Referred By"},
		Rows:    make([]map[string]string, 0, len(referrals)),
	}
	for _, r := range referrals {
		row := map[string]string{
			"Code":     r.ReferralCode,
			"Student":  r.StudentName,
			"Date":     r.ReferralDate.Format("2006-01-02"),
			"Reason":   r.Reason,
			"Severity": string(r.Severity),
			"Status":   string(r.Status),
		}
		if r.Level != nil {
			row["Level"] = string(*r.Level)
		}
		if r.Grade != nil {
			row["Grade"] = *r.Grade
		}
		if r.Category != nil {
			row["Category"] = *r.Category
		}
		if r.CreatedByName != nil {
			row["Referred By"] = *r.CreatedByName
		} else if r.IsAnonymous {
			row["Referred By"] = "Student Self-Report"
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset, nil
}

func (s *ReferralService) findExisting(ctx context.Context, id string) (*models.ReferralDetail, error) {
	referral, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "referral not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch referral")
	}
	return referral, nil
}

func (s *ReferralService) detail(ctx context.Context, id string) (*models.ReferralDetail, error) {
	referral, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch referral")
	}
	return referral, nil
}

// checkCategory re-validates non-empty categories against the registry
// on every write.
func (s *ReferralService) checkCategory(ctx context.Context, category *string) error {
	if category == nil || *category == "" || s.categories == nil {
		return nil
	}
	active, err := s.categories.ActiveExists(ctx, *category)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate category")
	}
	if !active {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("category %q is not a valid category", *category))
	}
	return nil
}

func (s *ReferralService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func applyUpdate(referral *models.Referral, req UpdateReferralRequest) {
	if req.StudentName != nil {
		referral.StudentName = *req.StudentName
	}
	if req.StudentID != nil {
		referral.StudentID = req.StudentID
	}
	if req.Level != nil {
		level := models.ReferralLevel(*req.Level)
		referral.Level = &level
	}
	if req.Grade != nil {
		referral.Grade = req.Grade
	}
	if req.ReferralDate != nil {
		referral.ReferralDate = *req.ReferralDate
	}
	if req.Reason != nil {
		referral.Reason = *req.Reason
	}
	if req.Description != nil {
		referral.Description = *req.Description
	}
	if req.Severity != nil {
		referral.Severity = models.ReferralSeverity(*req.Severity)
	}
	if req.Status != nil {
		referral.Status = models.ReferralStatus(*req.Status)
	}
	if req.Category != nil {
		referral.Category = normalizeCategory(req.Category)
	}
	if req.Notes != nil {
		referral.Notes = *req.Notes
	}
}

func filterFromRequest(req ReferralListRequest) models.ReferralFilter {
	return models.ReferralFilter{
		Search:   req.Search,
		Level:    normalizeFilterValue(req.Level),
		Severity: normalizeFilterValue(req.Severity),
		Status:   normalizeFilterValue(req.Status),
		Grade:    normalizeFilterValue(req.Grade),
	}
}

// normalizeFilterValue treats the frontend's "all" sentinel as unset.
func normalizeFilterValue(value string) string {
	if value == "all" {
		return ""
	}
	return value
}

// normalizeCategory maps an empty category to NULL so the unique
// registry check never sees empty strings.
func normalizeCategory(category *string) *string {
	if category == nil || *category == "" {
		return nil
	}
	return category
}

func isOwner(referral *models.ReferralDetail, actor *models.JWTClaims) bool {
	return referral.CreatedBy != nil && *referral.CreatedBy == actor.UserID
}
