package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// OptimalMoisture is the soil moisture target, in percent, given to the
// irrigation prompt.
const OptimalMoisture = 60.0

// Climate thresholds above which the grow light is switched off.
const (
	ClimateMaxTemperature = 33.0
	ClimateMaxHumidity    = 85.0
)

// RotationSeasons is the length of a full rotation plan.
const RotationSeasons = 4

// ClimateLightOn is the grow light rule: off only when it is both hot and humid.
func ClimateLightOn(temperature, humidity float64) bool {
	return !(temperature >= ClimateMaxTemperature && humidity >= ClimateMaxHumidity)
}

// Decision is an actuator recommendation.
type Decision struct {
	On     bool   `json:"on"`
	Reason string `json:"reason"`
}

// BestPractices is growing advice for one crop.
type BestPractices struct {
	Watering string `json:"watering"`
	Soil     string `json:"soil"`
	General  string `json:"general"`
}

// RotationStep is one season of a rotation plan.
type RotationStep struct {
	Season    string `json:"season"`
	Crop      string `json:"crop"`
	Reasoning string `json:"reasoning"`
}

// Conditions are the readings an environmental analysis is based on.
type Conditions struct {
	Temperature  float64
	Humidity     float64
	SoilMoisture float64
}

// Advisor renders prompts, calls the model and validates what comes back.
type Advisor struct {
	model Model
	log   *zap.Logger
}

// New returns an advisor backed by model.
func New(model Model, logger *zap.Logger) *Advisor {
	return &Advisor{model: model, log: logger.Named("advisor")}
}

// Irrigation recommends a pump state for the given soil moisture percentage.
func (a *Advisor) Irrigation(ctx context.Context, soilMoisture float64, pumpOn bool) (Decision, error) {
	input := struct {
		SoilMoisture    float64
		OptimalMoisture float64
		PumpStatus      bool
	}{soilMoisture, OptimalMoisture, pumpOn}

	var out struct {
		NewPumpStatus *bool  `json:"newPumpStatus"`
		Reason        string `json:"reason"`
	}
	if err := a.call(ctx, "irrigation", input, decisionSchema("newPumpStatus", "water pump"), &out); err != nil {
		return Decision{}, err
	}
	if out.NewPumpStatus == nil || strings.TrimSpace(out.Reason) == "" {
		return Decision{}, fmt.Errorf("%w: irrigation needs newPumpStatus and reason", ErrInvalidResponse)
	}
	return Decision{On: *out.NewPumpStatus, Reason: strings.TrimSpace(out.Reason)}, nil
}

// Climate recommends a grow light state. The threshold rule decides; the model
// only explains it. A model answer that contradicts the rule is replaced.
func (a *Advisor) Climate(ctx context.Context, temperature, humidity float64, bulbOn bool) (Decision, error) {
	input := struct {
		Temperature float64
		Humidity    float64
		BulbStatus  bool
	}{temperature, humidity, bulbOn}

	var out struct {
		NewBulbStatus *bool  `json:"newBulbStatus"`
		Reason        string `json:"reason"`
	}
	if err := a.call(ctx, "climate", input, decisionSchema("newBulbStatus", "grow light"), &out); err != nil {
		return Decision{}, err
	}
	if out.NewBulbStatus == nil || strings.TrimSpace(out.Reason) == "" {
		return Decision{}, fmt.Errorf("%w: climate needs newBulbStatus and reason", ErrInvalidResponse)
	}

	want := ClimateLightOn(temperature, humidity)
	if *out.NewBulbStatus != want {
		a.log.Warn("model contradicted climate rule",
			zap.Float64("temperature", temperature),
			zap.Float64("humidity", humidity),
			zap.Bool("model", *out.NewBulbStatus),
			zap.Bool("rule", want))
		return Decision{On: want, Reason: climateReason(temperature, humidity, want)}, nil
	}
	return Decision{On: want, Reason: strings.TrimSpace(out.Reason)}, nil
}

func climateReason(temperature, humidity float64, on bool) string {
	if on {
		return fmt.Sprintf("Temperature %s°C and humidity %s%% are within limits, keeping the grow light on to support growth.",
			trimFloat(temperature), trimFloat(humidity))
	}
	return fmt.Sprintf("Temperature %s°C and humidity %s%% are both high, turning the grow light off to reduce heat stress.",
		trimFloat(temperature), trimFloat(humidity))
}

// BestPractices returns growing advice for crop.
func (a *Advisor) BestPractices(ctx context.Context, crop string) (BestPractices, error) {
	crop, err := ValidCrop(crop)
	if err != nil {
		return BestPractices{}, err
	}

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"watering": {Type: genai.TypeString, Description: "Watering schedule."},
			"soil":     {Type: genai.TypeString, Description: "Soil health notes."},
			"general":  {Type: genai.TypeString, Description: "Other care advice."},
		},
		Required: []string{"watering", "soil", "general"},
	}

	var out BestPractices
	if err := a.call(ctx, "best_practices", struct{ Crop string }{crop}, schema, &out); err != nil {
		return BestPractices{}, err
	}
	if strings.TrimSpace(out.Watering) == "" && strings.TrimSpace(out.Soil) == "" && strings.TrimSpace(out.General) == "" {
		return BestPractices{}, fmt.Errorf("%w: empty best practices", ErrInvalidResponse)
	}
	return out, nil
}

// Rotation returns up to RotationSeasons steps following crop. Seasons are
// relabelled "Next Season", "Season 2", ... regardless of the model's labels.
func (a *Advisor) Rotation(ctx context.Context, crop string) ([]RotationStep, error) {
	crop, err := ValidCrop(crop)
	if err != nil {
		return nil, err
	}

	step := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"season":          {Type: genai.TypeString},
			"recommendedCrop": {Type: genai.TypeString},
			"reasoning":       {Type: genai.TypeString},
		},
		Required: []string{"season", "recommendedCrop", "reasoning"},
	}
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"recommendations": {
				Type:     genai.TypeArray,
				Items:    step,
				MinItems: genai.Ptr[int64](1),
				MaxItems: genai.Ptr[int64](RotationSeasons),
			},
		},
		Required: []string{"recommendations"},
	}

	var out struct {
		Recommendations []struct {
			Season          string `json:"season"`
			RecommendedCrop string `json:"recommendedCrop"`
			Reasoning       string `json:"reasoning"`
		} `json:"recommendations"`
	}
	input := struct {
		Crop    string
		Seasons int
	}{crop, RotationSeasons}
	if err := a.call(ctx, "rotation", input, schema, &out); err != nil {
		return nil, err
	}

	recs := out.Recommendations
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: rotation plan is empty", ErrInvalidResponse)
	}
	if len(recs) > RotationSeasons {
		recs = recs[:RotationSeasons]
	}

	steps := make([]RotationStep, 0, len(recs))
	for i, r := range recs {
		if strings.TrimSpace(r.RecommendedCrop) == "" {
			return nil, fmt.Errorf("%w: rotation step %d has no crop", ErrInvalidResponse, i+1)
		}
		steps = append(steps, RotationStep{
			Season:    SeasonLabel(i),
			Crop:      strings.TrimSpace(r.RecommendedCrop),
			Reasoning: strings.TrimSpace(r.Reasoning),
		})
	}
	return steps, nil
}

// SeasonLabel names the i-th (zero based) season of a rotation plan.
func SeasonLabel(i int) string {
	if i == 0 {
		return "Next Season"
	}
	return fmt.Sprintf("Season %d", i+1)
}

// EnvironmentalImpact returns one sentence on how the conditions affect crop.
func (a *Advisor) EnvironmentalImpact(ctx context.Context, crop string, c Conditions) (string, error) {
	crop, err := ValidCrop(crop)
	if err != nil {
		return "", err
	}

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"impactAnalysis": {Type: genai.TypeString, Description: "One sentence."},
		},
		Required: []string{"impactAnalysis"},
	}
	input := struct {
		Crop         string
		Temperature  float64
		Humidity     float64
		SoilMoisture float64
	}{crop, c.Temperature, c.Humidity, c.SoilMoisture}

	var out struct {
		ImpactAnalysis string `json:"impactAnalysis"`
	}
	if err := a.call(ctx, "impact", input, schema, &out); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.ImpactAnalysis)
	if text == "" {
		return "", fmt.Errorf("%w: empty impact analysis", ErrInvalidResponse)
	}
	return text, nil
}

func (a *Advisor) call(ctx context.Context, name string, input any, schema *genai.Schema, out any) error {
	prompt, err := render(name, input)
	if err != nil {
		return fmt.Errorf("render %s prompt: %w", name, err)
	}

	raw, err := a.model.Generate(ctx, Request{Name: name, Prompt: prompt, Schema: schema})
	if err != nil {
		a.log.Warn("model call failed", zap.String("prompt", name), zap.Error(err))
		return err
	}

	if err := json.Unmarshal(stripFence(raw), out); err != nil {
		a.log.Warn("unparseable model response", zap.String("prompt", name), zap.ByteString("body", raw))
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, name, err)
	}
	return nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(raw []byte) []byte {
	b := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = b[3:]
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		b = b[nl+1:]
	}
	b = bytes.TrimSuffix(bytes.TrimSpace(b), []byte("```"))
	return bytes.TrimSpace(b)
}

func decisionSchema(field, device string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			field:    {Type: genai.TypeBoolean, Description: "Recommended " + device + " state, true for ON."},
			"reason": {Type: genai.TypeString, Description: "Short reason for the decision."},
		},
		Required: []string{field, "reason"},
	}
}
