package advisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fixed(body string) ModelFunc {
	return func(context.Context, Request) ([]byte, error) { return []byte(body), nil }
}

func TestClimateLightOn(t *testing.T) {
	assert.False(t, ClimateLightOn(33, 85))
	assert.False(t, ClimateLightOn(40, 99))
	assert.True(t, ClimateLightOn(32.9, 100))
	assert.True(t, ClimateLightOn(35, 84.9))
	assert.True(t, ClimateLightOn(20, 50))
}

func TestIrrigation_PromptAndDecision(t *testing.T) {
	var got Request
	model := ModelFunc(func(_ context.Context, req Request) ([]byte, error) {
		got = req
		return []byte(`{"newPumpStatus": true, "reason": "Soil is dry."}`), nil
	})

	d, err := New(model, zap.NewNop()).Irrigation(context.Background(), 42.5, false)
	require.NoError(t, err)
	assert.Equal(t, Decision{On: true, Reason: "Soil is dry."}, d)

	assert.Equal(t, "irrigation", got.Name)
	assert.Contains(t, got.Prompt, "Soil Moisture: 42.5%")
	assert.Contains(t, got.Prompt, "Optimal Moisture: 60%")
	assert.Contains(t, got.Prompt, "Current Pump Status: OFF")
	require.NotNil(t, got.Schema)
	assert.Contains(t, got.Schema.Required, "newPumpStatus")
}

func TestIrrigation_InvalidResponses(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `sorry, I cannot help`,
		"missing status": `{"reason": "dry"}`,
		"missing reason": `{"newPumpStatus": false}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(fixed(body), zap.NewNop()).Irrigation(context.Background(), 10, false)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestIrrigation_ModelError(t *testing.T) {
	boom := errors.New("quota exceeded")
	model := ModelFunc(func(context.Context, Request) ([]byte, error) { return nil, boom })
	_, err := New(model, zap.NewNop()).Irrigation(context.Background(), 10, false)
	assert.ErrorIs(t, err, boom)

	_, err = New(Unavailable{}, zap.NewNop()).Irrigation(context.Background(), 10, false)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClimate_RuleIsAuthoritative(t *testing.T) {
	a := New(fixed("```json\n{\"newBulbStatus\": true, \"reason\": \"Light helps growth.\"}\n```"), zap.NewNop())

	d, err := a.Climate(context.Background(), 34, 90, true)
	require.NoError(t, err)
	assert.False(t, d.On)
	assert.Contains(t, d.Reason, "off")

	d, err = a.Climate(context.Background(), 25, 60, false)
	require.NoError(t, err)
	assert.True(t, d.On)
	assert.Equal(t, "Light helps growth.", d.Reason)
}

func TestBestPractices(t *testing.T) {
	a := New(fixed(`{"watering":"Twice a week.","soil":"Loamy.","general":"Stake plants."}`), zap.NewNop())
	bp, err := a.BestPractices(context.Background(), "tomato")
	require.NoError(t, err)
	assert.Equal(t, "Twice a week.", bp.Watering)

	_, err = a.BestPractices(context.Background(), "Durian")
	assert.ErrorIs(t, err, ErrUnknownCrop)

	_, err = New(fixed(`{}`), zap.NewNop()).BestPractices(context.Background(), "Onion")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRotation_LabelsAndTruncates(t *testing.T) {
	body := `{"recommendations":[
		{"season":"Spring","recommendedCrop":"Soybean","reasoning":"Fixes nitrogen."},
		{"season":"x","recommendedCrop":"Corn","reasoning":"r2"},
		{"season":"x","recommendedCrop":"Lettuce","reasoning":"r3"},
		{"season":"x","recommendedCrop":"Carrot","reasoning":"r4"},
		{"season":"x","recommendedCrop":"Onion","reasoning":"r5"}]}`

	steps, err := New(fixed(body), zap.NewNop()).Rotation(context.Background(), "Tomato")
	require.NoError(t, err)
	require.Len(t, steps, RotationSeasons)
	assert.Equal(t, RotationStep{Season: "Next Season", Crop: "Soybean", Reasoning: "Fixes nitrogen."}, steps[0])
	assert.Equal(t, "Season 4", steps[3].Season)

	_, err = New(fixed(`{"recommendations":[]}`), zap.NewNop()).Rotation(context.Background(), "Tomato")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestEnvironmentalImpact(t *testing.T) {
	var prompt string
	model := ModelFunc(func(_ context.Context, req Request) ([]byte, error) {
		prompt = req.Prompt
		return []byte(`{"impactAnalysis":"Conditions are near optimal for Lettuce."}`), nil
	})
	got, err := New(model, zap.NewNop()).EnvironmentalImpact(context.Background(), "lettuce",
		Conditions{Temperature: 21, Humidity: 65.4, SoilMoisture: 58})
	require.NoError(t, err)
	assert.Equal(t, "Conditions are near optimal for Lettuce.", got)
	assert.Contains(t, prompt, "Lettuce")
	assert.Contains(t, prompt, "Humidity: 65.4%")
}

func TestValidCrop(t *testing.T) {
	c, err := ValidCrop("  soybean ")
	require.NoError(t, err)
	assert.Equal(t, "Soybean", c)
	_, err = ValidCrop("")
	assert.ErrorIs(t, err, ErrUnknownCrop)
}
