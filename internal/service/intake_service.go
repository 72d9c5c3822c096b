package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/guidancehub/referral-api/internal/models"
	appErrors "github.com/guidancehub/referral-api/pkg/errors"
)

const selfReportSource = "Student Self-Report"

type referralCreator interface {
	Create(ctx context.Context, referral *models.Referral) error
}

// IntakeService maps unauthenticated student submissions into referral
// records. Submitters only ever learn the generated referral code.
type IntakeService struct {
	repo      referralCreator
	validator *validator.Validate
	logger    *zap.Logger
	metrics   referralMetrics
}

// NewIntakeService constructs the service. metrics may be nil.
func NewIntakeService(repo referralCreator, validate *validator.Validate, logger *zap.Logger, metrics referralMetrics) *IntakeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &IntakeService{repo: repo, validator: validate, logger: logger, metrics: metrics}
	svc.validator.RegisterValidation("name_disclosure", func(fl validator.FieldLevel) bool { //nolint:errcheck
		switch models.NameDisclosure(fl.Field().String()) {
		case models.DisclosureRealName, models.DisclosureAnonymous, models.DisclosurePreferNot:
			return true
		default:
			return false
		}
	})
	return svc
}

// SubmitConcernRequest is the public student form payload.
type SubmitConcernRequest struct {
	StudentName string `json:"studentName"`
	Concern     string `json:"concern"`
	NameOption  string `json:"nameOption" validate:"omitempty,name_disclosure"`
}

// SubmitConcernResponse deliberately exposes nothing but the code.
type SubmitConcernResponse struct {
	ReferralCode string `json:"referralCode"`
}

// Submit validates and stores a student concern as a Pending referral.
func (s *IntakeService) Submit(ctx context.Context, req SubmitConcernRequest) (*SubmitConcernResponse, error) {
	concern := strings.TrimSpace(req.Concern)
	if concern == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "concern is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	studentName := strings.TrimSpace(req.StudentName)
	if studentName == "" {
		studentName = "Anonymous"
	}
	disclosure := models.NameDisclosure(req.NameOption)
	if disclosure == "" {
		disclosure = models.DisclosurePreferNot
	}
	referredBy := selfReportSource

	referral := &models.Referral{
		StudentName:    studentName,
		ReferralDate:   time.Now().UTC(),
		Reason:         concern,
		Description:    concern,
		Severity:       models.SeverityMedium,
		Status:         models.StatusPending,
		ReferredBy:     &referredBy,
		IsAnonymous:    true,
		NameDisclosure: &disclosure,
	}
	if err := s.repo.Create(ctx, referral); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit concern")
	}
	if s.metrics != nil {
		s.metrics.ReferralCreated("public")
	}
	s.logger.Info("student concern submitted", zap.String("referral_code", referral.ReferralCode))

	return &SubmitConcernResponse{ReferralCode: referral.ReferralCode}, nil
}
