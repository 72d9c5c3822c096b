package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidancehub/referral-api/internal/models"
	appErrors "github.com/guidancehub/referral-api/pkg/errors"
)

func TestIntakeServiceSubmitRejectsBlankConcern(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := NewIntakeService(repo, nil, nil, nil)

	for _, concern := range []string{"", "   ", "\n\t "} {
		_, err := svc.Submit(context.Background(), SubmitConcernRequest{Concern: concern})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	}
	assert.Empty(t, repo.created)
}

func TestIntakeServiceSubmitDefaults(t *testing.T) {
	repo := &mockReferralRepo{}
	metrics := &mockMetrics{}
	svc := NewIntakeService(repo, nil, nil, metrics)

	resp, err := svc.Submit(context.Background(), SubmitConcernRequest{
		Concern: "  Someone keeps taking my things  ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ReferralCode)

	require.Len(t, repo.created, 1)
	created := repo.created[0]
	assert.Equal(t, "Anonymous", created.StudentName)
	assert.Equal(t, "Someone keeps taking my things", created.Reason)
	assert.Equal(t, "Someone keeps taking my things", created.Description)
	assert.Equal(t, models.SeverityMedium, created.Severity)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.True(t, created.IsAnonymous)
	assert.Nil(t, created.Level)
	assert.Nil(t, created.Grade)
	assert.Nil(t, created.CreatedBy)
	require.NotNil(t, created.NameDisclosure)
	assert.Equal(t, models.DisclosurePreferNot, *created.NameDisclosure)
	require.NotNil(t, created.ReferredBy)
	assert.Equal(t, "Student Self-Report", *created.ReferredBy)
	assert.Equal(t, 1, metrics.created["public"])
}

func TestIntakeServiceSubmitKeepsDisclosedName(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := NewIntakeService(repo, nil, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitConcernRequest{
		StudentName: "Ben Reyes",
		Concern:     "I need to talk to a counselor",
		NameOption:  "realName",
	})
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "Ben Reyes", repo.created[0].StudentName)
	assert.Equal(t, models.DisclosureRealName, *repo.created[0].NameDisclosure)
}

func TestIntakeServiceSubmitRejectsUnknownNameOption(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := NewIntakeService(repo, nil, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitConcernRequest{
		Concern:    "Valid concern",
		NameOption: "pseudonym",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Empty(t, repo.created)
}

func TestIntakeServiceResponseExposesOnlyCode(t *testing.T) {
	repo := &mockReferralRepo{}
	svc := NewIntakeService(repo, nil, nil, nil)

	resp, err := svc.Submit(context.Background(), SubmitConcernRequest{Concern: "Valid concern"})
	require.NoError(t, err)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Len(t, fields, 1)
	assert.Contains(t, fields, "referralCode")
}
