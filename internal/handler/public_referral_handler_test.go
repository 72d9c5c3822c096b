package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidancehub/referral-api/internal/models"
	"github.com/guidancehub/referral-api/internal/service"
)

func newIntakeRouter(repo *stubReferralRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewIntakeService(repo, nil, zap.NewNop(), nil)
	h := NewPublicReferralHandler(svc)

	r := gin.New()
	r.POST("/api/public-referrals", h.Submit)
	return r
}

func TestPublicSubmitRequiresConcern(t *testing.T) {
	repo := &stubReferralRepo{}
	r := newIntakeRouter(repo)

	rec := perform(r, http.MethodPost, "/api/public-referrals", `{"concern": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "concern is required", env.Error)
	assert.Empty(t, repo.created)
}

func TestPublicSubmitReturnsOnlyReferralCode(t *testing.T) {
	repo := &stubReferralRepo{}
	r := newIntakeRouter(repo)

	rec := perform(r, http.MethodPost, "/api/public-referrals", `{"concern": "I am being bullied at lunch"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &fields))
	assert.Len(t, fields, 1)
	assert.Contains(t, fields, "referralCode")

	require.Len(t, repo.created, 1)
	created := repo.created[0]
	assert.Equal(t, "Anonymous", created.StudentName)
	assert.True(t, created.IsAnonymous)
	assert.Equal(t, models.StatusPending, created.Status)
	require.NotNil(t, created.NameDisclosure)
	assert.Equal(t, models.DisclosurePreferNot, *created.NameDisclosure)
}

func TestPublicSubmitAcceptsDisclosedName(t *testing.T) {
	repo := &stubReferralRepo{}
	r := newIntakeRouter(repo)

	rec := perform(r, http.MethodPost, "/api/public-referrals",
		`{"studentName": "Ben Reyes", "concern": "I want to talk to a counselor", "nameOption": "realName"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "Ben Reyes", repo.created[0].StudentName)
}
