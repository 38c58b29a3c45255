package service

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

func validationPaths(t *testing.T, err error) []string {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	paths := make([]string, 0, len(appErr.Entries()))
	for _, entry := range appErr.Entries() {
		paths = append(paths, strings.Join(entry.Path, "."))
	}
	return paths
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func TestAppletValidatorAcceptsSleepDiary(t *testing.T) {
	payload := sleepDiaryPayload()
	require.NoError(t, NewAppletValidator(nil).Validate(&payload))

	var canonical map[string]interface{}
	require.NoError(t, json.Unmarshal(payload.Activities[0].Items[0].Config, &canonical))
	assert.Contains(t, canonical, "randomizeOptions")
}

func TestAppletValidatorStructuralRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *dto.AppletPayload)
		path   string
	}{
		{
			name:   "missing display name",
			mutate: func(p *dto.AppletPayload) { p.DisplayName = "" },
			path:   "displayName",
		},
		{
			name: "duplicate activity name",
			mutate: func(p *dto.AppletPayload) {
				p.Activities[1].Name = p.Activities[0].Name
			},
			path: "activities.1.name",
		},
		{
			name: "duplicate flow name",
			mutate: func(p *dto.AppletPayload) {
				p.Flows = append(p.Flows, p.Flows[0])
			},
			path: "activityFlows.1.name",
		},
		{
			name: "duplicate item name",
			mutate: func(p *dto.AppletPayload) {
				p.Activities[1].Items = append(p.Activities[1].Items, p.Activities[1].Items[0])
			},
			path: "activities.1.items.1.name",
		},
		{
			name: "two reviewable activities",
			mutate: func(p *dto.AppletPayload) {
				p.Activities[0].IsReviewable = true
				p.Activities[1].IsReviewable = true
			},
			path: "activities.1.isReviewable",
		},
		{
			name: "flow references missing activity",
			mutate: func(p *dto.AppletPayload) {
				p.Flows[0].Items[1].ActivityKey = "0b7d1c52-0000-4000-8000-00000000dead"
			},
			path: "activityFlows.0.items.1.activityKey",
		},
		{
			name: "unknown response type",
			mutate: func(p *dto.AppletPayload) {
				p.Activities[1].Items[0].ResponseType = "hologram"
			},
			path: "activities.1.items.0.responseType",
		},
		{
			name: "unknown field in response values",
			mutate: func(p *dto.AppletPayload) {
				p.Activities[0].Items[0].ResponseValues = json.RawMessage(`{"options":[{"id":"a","text":"a","value":0}],"colour":"red"}`)
			},
			path: "activities.0.items.0.responseValues",
		},
		{
			name: "select without options",
			mutate: func(p *dto.AppletPayload) {
				p.Activities[0].Items[0].ResponseValues = json.RawMessage(`{"options":[]}`)
			},
			path: "activities.0.items.0.responseValues.options",
		},
		{
			name: "text item with response values",
			mutate: func(p *dto.AppletPayload) {
				p.Activities[1].Items[0].ResponseValues = json.RawMessage(`{"options":[]}`)
			},
			path: "activities.1.items.0.responseValues",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := twoActivityPayload()
			tc.mutate(&payload)
			err := NewAppletValidator(nil).Validate(&payload)
			require.Error(t, err)
			assert.Contains(t, validationPaths(t, err), tc.path)
		})
	}
}

func conditionalPayload(cond models.Condition) dto.AppletPayload {
	payload := sleepDiaryPayload()
	payload.Activities[0].Items = append(payload.Activities[0].Items,
		dto.ItemPayload{
			Name:           "hours",
			ResponseType:   models.ResponseSlider,
			ResponseValues: json.RawMessage(`{"minValue":0,"maxValue":12}`),
		},
		dto.ItemPayload{
			Name:             "why",
			ResponseType:     models.ResponseText,
			ConditionalLogic: &models.ConditionalLogic{Match: models.MatchAll, Conditions: []models.Condition{cond}},
		},
	)
	return payload
}

func TestAppletValidatorConditionalLogic(t *testing.T) {
	tests := []struct {
		name string
		cond models.Condition
		path string
	}{
		{
			name: "option condition on select",
			cond: models.Condition{ItemName: "mood", Type: models.ConditionEqualToOption, Payload: models.ConditionPayload{OptionValue: strPtr("bad")}},
		},
		{
			name: "range condition on slider",
			cond: models.Condition{ItemName: "hours", Type: models.ConditionBetween, Payload: models.ConditionPayload{MinValue: floatPtr(2), MaxValue: floatPtr(6)}},
		},
		{
			name: "unknown sibling",
			cond: models.Condition{ItemName: "energy", Type: models.ConditionEqual, Payload: models.ConditionPayload{Value: floatPtr(1)}},
			path: "activities.0.items.2.conditionalLogic.conditions.0.itemName",
		},
		{
			name: "self reference",
			cond: models.Condition{ItemName: "why", Type: models.ConditionEqual, Payload: models.ConditionPayload{Value: floatPtr(1)}},
			path: "activities.0.items.2.conditionalLogic.conditions.0.itemName",
		},
		{
			name: "operator not legal for response type",
			cond: models.Condition{ItemName: "mood", Type: models.ConditionGreaterThan, Payload: models.ConditionPayload{Value: floatPtr(1)}},
			path: "activities.0.items.2.conditionalLogic.conditions.0.type",
		},
		{
			name: "option does not exist",
			cond: models.Condition{ItemName: "mood", Type: models.ConditionEqualToOption, Payload: models.ConditionPayload{OptionValue: strPtr("ecstatic")}},
			path: "activities.0.items.2.conditionalLogic.conditions.0.payload.optionValue",
		},
		{
			name: "inverted range",
			cond: models.Condition{ItemName: "hours", Type: models.ConditionOutsideOf, Payload: models.ConditionPayload{MinValue: floatPtr(9), MaxValue: floatPtr(3)}},
			path: "activities.0.items.2.conditionalLogic.conditions.0.payload.minValue",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := conditionalPayload(tc.cond)
			err := NewAppletValidator(nil).Validate(&payload)
			if tc.path == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, validationPaths(t, err), tc.path)
		})
	}
}

func TestAppletValidatorScoresAndSubscales(t *testing.T) {
	payload := sleepDiaryPayload()
	payload.Activities[0].ScoresAndReports = &models.ScoresAndReports{
		GenerateReport: true,
		Reports: []models.Report{
			{Type: models.ReportScore, ID: "score_mood", Name: "Mood", ItemsScore: []string{"mood"}, Calculation: models.CalculationSum,
				ConditionalLogic: []models.ScoreConditionalLogic{{
					ID: "low", Name: "Low", Match: models.MatchAll,
					Conditions: []models.ScoreCondition{{ItemName: "score_mood", Type: models.ConditionLessThan, Payload: models.ConditionPayload{Value: floatPtr(1)}}},
				}}},
			{Type: models.ReportScore, ID: "score_mood", Name: "Mood", ItemsScore: []string{"sleep"}},
			{Type: models.ReportSection, Name: "Summary", ItemsPrint: []string{"mood"},
				SectionLogic: &models.ConditionalLogic{Match: models.MatchAny, Conditions: []models.Condition{{ItemName: "energy", Type: models.ConditionEqual, Payload: models.ConditionPayload{Value: floatPtr(1)}}}}},
		},
	}
	payload.Activities[0].SubscaleSetting = &models.SubscaleSetting{
		Subscales: []models.Subscale{
			{Name: "Core", Scoring: models.CalculationSum, Items: []models.SubscaleItem{{Name: "mood", Type: models.SubscaleMemberItem}}},
			{Name: "Outer", Scoring: models.CalculationSum, Items: []models.SubscaleItem{
				{Name: "Core", Type: models.SubscaleMemberSubscale},
				{Name: "appetite", Type: models.SubscaleMemberItem},
			}},
		},
	}

	err := NewAppletValidator(nil).Validate(&payload)
	require.Error(t, err)
	paths := validationPaths(t, err)
	assert.Contains(t, paths, "activities.0.scoresAndReports.reports.1.name")
	assert.Contains(t, paths, "activities.0.scoresAndReports.reports.1.id")
	assert.Contains(t, paths, "activities.0.scoresAndReports.reports.1.itemsScore.0")
	assert.Contains(t, paths, "activities.0.scoresAndReports.reports.2.sectionConditionalLogic.conditions.0.itemName")
	assert.Contains(t, paths, "activities.0.subscaleSetting.subscales.1.items.1.name")
	assert.NotContains(t, paths, "activities.0.subscaleSetting.subscales.1.items.0.name")
	assert.NotContains(t, paths, "activities.0.scoresAndReports.reports.0.conditionalLogic.0.conditions.0.itemName")
}

func TestValidatorConstructorsLeaveSharedInstanceAlone(t *testing.T) {
	type named struct {
		DisplayName string `json:"displayName" validate:"required"`
	}
	fieldOf := func(v *validator.Validate) string {
		var errs validator.ValidationErrors
		require.True(t, errors.As(v.Struct(named{}), &errs))
		return errs[0].Field()
	}

	shared := validator.New()
	NewAppletValidator(shared)
	NewAnswerService(nil, nil, nil, nil, shared, nil)
	NewUserService(nil, nil, shared, nil)
	assert.Equal(t, "DisplayName", fieldOf(shared))

	assert.Equal(t, "displayName", fieldOf(NewValidator()))
}
