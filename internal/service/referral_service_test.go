package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidancehub/referral-api/internal/models"
	appErrors "github.com/guidancehub/referral-api/pkg/errors"
)

type mockReferralRepo struct {
	records    map[string]models.ReferralDetail
	created    []*models.Referral
	updated    *models.Referral
	deleted    []string
	lastFilter models.ReferralFilter
	listResp   []models.ReferralDetail
	statsResp  models.ReferralStats
	statsCalls int
}

func (m *mockReferralRepo) List(ctx context.Context, filter models.ReferralFilter) ([]models.ReferralDetail, error) {
	m.lastFilter = filter
	return m.listResp, nil
}

func (m *mockReferralRepo) FindByID(ctx context.Context, id string) (*models.ReferralDetail, error) {
	if rec, ok := m.records[id]; ok {
		copied := rec
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReferralRepo) Create(ctx context.Context, referral *models.Referral) error {
	if referral.ID == "" {
		referral.ID = fmt.Sprintf("generated-%d", len(m.created)+1)
	}
	referral.ReferralCode = fmt.Sprintf("REF-20240115-%03d", len(m.created)+1)
	m.created = append(m.created, referral)
	if m.records == nil {
		m.records = make(map[string]models.ReferralDetail)
	}
	m.records[referral.ID] = models.ReferralDetail{Referral: *referral}
	return nil
}

func (m *mockReferralRepo) Update(ctx context.Context, referral *models.Referral) error {
	if _, ok := m.records[referral.ID]; !ok {
		return sql.ErrNoRows
	}
	m.updated = referral
	m.records[referral.ID] = models.ReferralDetail{Referral: *referral}
	return nil
}

func (m *mockReferralRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.records[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.records, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockReferralRepo) Stats(ctx context.Context) (*models.ReferralStats, error) {
	m.statsCalls++
	stats := m.statsResp
	return &stats, nil
}

type mockRegistry struct {
	active map[string]bool
}

func (m *mockRegistry) ActiveExists(ctx context.Context, name string) (bool, error) {
	return m.active[name], nil
}

type mockCache struct {
	data    map[string][]byte
	deletes []string
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = raw
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.deletes = append(m.deletes, key)
	delete(m.data, key)
	return nil
}

type mockMetrics struct {
	created map[string]int
}

func (m *mockMetrics) ReferralCreated(source string) {
	if m.created == nil {
		m.created = make(map[string]int)
	}
	m.created[source]++
}

func strPtr(s string) *string { return &s }

func adviserClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleAdviser}
}

func counselorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "coun1", Role: models.RoleCounselor}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "adm1", Role: models.RoleAdmin}
}

func ownedReferral(id, owner string) models.ReferralDetail {
	level := models.LevelJuniorHigh
	grade := "Grade 8"
	return models.ReferralDetail{Referral: models.Referral{
		ID:           id,
		ReferralCode: "REF-20240110-001",
		StudentName:  "Ana Cruz",
		Level:        &level,
		Grade:        &grade,
		ReferralDate: time.Now(),
		Reason:       "Bullying",
		Severity:     models.SeverityMedium,
		Status:       models.StatusPending,
		CreatedBy:    &owner,
	}}
}

func newTestService(repo *mockReferralRepo, registry *mockRegistry, cache *mockCache, metrics *mockMetrics) *ReferralService {
	var cacheIface statsCache
	if cache != nil {
		cacheIface = cache
	}
	var metricsIface referralMetrics
	if metrics != nil {
		metricsIface = metrics
	}
	var registryIface categoryRegistry
	if registry != nil {
		registryIface = registry
	}
	return NewReferralService(repo, registryIface, cacheIface, metricsIface, nil, nil, time.Minute, 5)
}

func validCreateRequest() CreateReferralRequest {
	return CreateReferralRequest{
		StudentName:  "Ana Cruz",
		Level:        "JHS",
		Grade:        "Grade 8",
		ReferralDate: time.Now(),
		Reason:       "Bullying incident in hallway",
		Severity:     "High",
	}
}

func TestReferralServiceCreateSetsCreator(t *testing.T) {
	repo := &mockReferralRepo{}
	metrics := &mockMetrics{}
	cache := &mockCache{}
	svc := newTestService(repo, nil, cache, metrics)

	referral, err := svc.Create(context.Background(), adviserClaims("adv1"), validCreateRequest())
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	require.NotNil(t, referral.CreatedBy)
	assert.Equal(t, "adv1", *referral.CreatedBy)
	assert.False(t, referral.IsAnonymous)
	assert.Equal(t, models.StatusPending, referral.Status)
	assert.Equal(t, models.SeverityHigh, referral.Severity)
	assert.Equal(t, 1, metrics.created["staff"])
	assert.Contains(t, cache.deletes, "referrals:stats")
}

func TestReferralServiceCreateRequiresFields(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := newTestService(repo, nil, nil, nil)

	req := validCreateRequest()
	req.Level = ""
	_, err := svc.Create(context.Background(), adviserClaims("adv1"), req)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Empty(t, repo.created)
}

func TestReferralServiceCreateDefaultsSeverity(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := newTestService(repo, nil, nil, nil)

	req := validCreateRequest()
	req.Severity = ""
	referral, err := svc.Create(context.Background(), adviserClaims("adv1"), req)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, referral.Severity)
}

func TestReferralServiceCreateRejectsInactiveCategory(t *testing.T) {
	repo := &mockReferralRepo{}
	registry := &mockRegistry{active: map[string]bool{"Bullying": true}}
	svc := newTestService(repo, registry, nil, nil)

	req := validCreateRequest()
	req.Category = strPtr("Ghost Category")
	_, err := svc.Create(context.Background(), adviserClaims("adv1"), req)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Empty(t, repo.created)

	req.Category = strPtr("Bullying")
	_, err = svc.Create(context.Background(), adviserClaims("adv1"), req)
	assert.NoError(t, err)
}

func TestReferralServiceCreateAllowsEmptyCategory(t *testing.T) {
	repo := &mockReferralRepo{}
	registry := &mockRegistry{}
	svc := newTestService(repo, registry, nil, nil)

	req := validCreateRequest()
	req.Category = strPtr("")
	referral, err := svc.Create(context.Background(), adviserClaims("adv1"), req)
	require.NoError(t, err)
	assert.Nil(t, referral.Category)
}

func TestReferralServiceUpdateStripsRestrictedFieldsForAdviser(t *testing.T) {
	repo := &mockReferralRepo{records: map[string]models.ReferralDetail{
		"r1": ownedReferral("r1", "adv1"),
	}}
	svc := newTestService(repo, nil, nil, nil)

	req := UpdateReferralRequest{
		Reason: strPtr("Updated reason"),
		Status: strPtr("Complete"),
		Notes:  strPtr("counselor only"),
	}
	referral, err := svc.Update(context.Background(), adviserClaims("adv1"), "r1", req)
	require.NoError(t, err)

	require.NotNil(t, repo.updated)
	assert.Equal(t, "Updated reason", repo.updated.Reason)
	assert.Equal(t, models.StatusPending, repo.updated.Status)
	assert.Empty(t, repo.updated.Notes)
	assert.Equal(t, models.StatusPending, referral.Status)
}

func TestReferralServiceUpdateForbiddenForNonOwner(t *testing.T) {
	repo := &mockReferralRepo{records: map[string]models.ReferralDetail{
		"r1": ownedReferral("r1", "adv1"),
	}}
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), adviserClaims("adv2"), "r1", UpdateReferralRequest{
		Reason: strPtr("hijack"),
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
	assert.Nil(t, repo.updated)
}

func TestReferralServiceUpdatePrivilegedSetsStatusAndNotes(t *testing.T) {
	repo := &mockReferralRepo{records: map[string]models.ReferralDetail{
		"r1": ownedReferral("r1", "adv1"),
	}}
	svc := newTestService(repo, nil, nil, nil)

	referral, err := svc.Update(context.Background(), counselorClaims(), "r1", UpdateReferralRequest{
		Status: strPtr("Under Review"),
		Notes:  strPtr("scheduled consultation"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, referral.Status)
	assert.Equal(t, "scheduled consultation", referral.Notes)
}

func TestReferralServiceUpdateRejectsUnknownStatus(t *testing.T) {
	repo := &mockReferralRepo{records: map[string]models.ReferralDetail{
		"r1": ownedReferral("r1", "adv1"),
	}}
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), counselorClaims(), "r1", UpdateReferralRequest{
		Status: strPtr("Archived"),
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestReferralServiceUpdateNotFound(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), counselorClaims(), "missing", UpdateReferralRequest{})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestReferralServiceGetOwnershipRules(t *testing.T) {
	repo := &mockReferralRepo{records: map[string]models.ReferralDetail{
		"r1": ownedReferral("r1", "adv1"),
	}}
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.Get(context.Background(), adviserClaims("adv1"), "r1")
	assert.NoError(t, err)

	_, err = svc.Get(context.Background(), counselorClaims(), "r1")
	assert.NoError(t, err)

	_, err = svc.Get(context.Background(), adviserClaims("adv2"), "r1")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)

	_, err = svc.Get(context.Background(), adminClaims(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestReferralServiceListMineScopesToCaller(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.ListMine(context.Background(), adviserClaims("adv1"), ReferralListRequest{
		Level:  "all",
		Status: "Pending",
	})
	require.NoError(t, err)
	assert.Equal(t, "adv1", repo.lastFilter.CreatedBy)
	assert.Empty(t, repo.lastFilter.Level)
	assert.Equal(t, "Pending", repo.lastFilter.Status)
}

func TestReferralServiceListAllForbiddenForAdviser(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.ListAll(context.Background(), adviserClaims("adv1"), ReferralListRequest{})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)

	_, err = svc.ListAll(context.Background(), counselorClaims(), ReferralListRequest{})
	assert.NoError(t, err)
	assert.Empty(t, repo.lastFilter.CreatedBy)
}

func TestReferralServiceRecentScopesAdviser(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.Recent(context.Background(), adviserClaims("adv1"))
	require.NoError(t, err)
	assert.Equal(t, "adv1", repo.lastFilter.CreatedBy)
	assert.Equal(t, 5, repo.lastFilter.Limit)

	_, err = svc.Recent(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.Empty(t, repo.lastFilter.CreatedBy)
}

func TestReferralServiceStatsForbiddenForAdviser(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.Stats(context.Background(), adviserClaims("adv1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
	assert.Zero(t, repo.statsCalls)
}

func TestReferralServiceStatsServedFromCache(t *testing.T) {
	repo := &mockReferralRepo{statsResp: models.ReferralStats{
		Total:    5,
		ByStatus: models.StatusBreakdown{Pending: 3, Complete: 2},
	}}
	cache := &mockCache{}
	svc := newTestService(repo, nil, cache, nil)

	stats, err := svc.Stats(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.ByStatus.Pending)
	assert.Equal(t, 1, repo.statsCalls)

	stats, err = svc.Stats(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ByStatus.Complete)
	assert.Equal(t, 1, repo.statsCalls)
}

func TestReferralServiceDeleteAdminOnly(t *testing.T) {
	repo := &mockReferralRepo{records: map[string]models.ReferralDetail{
		"r1": ownedReferral("r1", "adv1"),
	}}
	svc := newTestService(repo, nil, nil, nil)

	err := svc.Delete(context.Background(), counselorClaims(), "r1")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
	assert.Empty(t, repo.deleted)

	require.NoError(t, svc.Delete(context.Background(), adminClaims(), "r1"))
	assert.Equal(t, []string{"r1"}, repo.deleted)

	err = svc.Delete(context.Background(), adminClaims(), "r1")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestReferralServiceExportDataset(t *testing.T) {
	level := models.LevelSeniorHigh
	grade := "Grade 11"
	name := "Ms. Santos"
	repo := &mockReferralRepo{listResp: []models.ReferralDetail{
		{
			Referral: models.Referral{
				ReferralCode: "REF-20240115-001",
				StudentName:  "Ana Cruz",
				Level:        &level,
				Grade:        &grade,
				ReferralDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				Reason:       "Bullying",
				Severity:     models.SeverityHigh,
				Status:       models.StatusPending,
			},
			CreatedByName: &name,
		},
		{
			Referral: models.Referral{
				ReferralCode: "REF-20240115-002",
				StudentName:  "Anonymous",
				ReferralDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				Reason:       "Concern",
				Severity:     models.SeverityMedium,
				Status:       models.StatusPending,
				IsAnonymous:  true,
			},
		},
	}}
	svc := newTestService(repo, nil, nil, nil)

	dataset, err := svc.ExportDataset(context.Background(), adminClaims(), ReferralListRequest{})
	require.NoError(t, err)
	require.Len(t, dataset.Rows, 2)
	assert.Equal(t, "Ms. Santos", dataset.Rows[0]["Referred By"])
	assert.Equal(t, "Student Self-Report", dataset.Rows[1]["Referred By"])

	_, err = svc.ExportDataset(context.Background(), adviserClaims("adv1"), ReferralListRequest{})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
}
