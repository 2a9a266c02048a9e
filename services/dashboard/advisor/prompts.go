package advisor

import (
	"strconv"
	"strings"
	"text/template"
)

var promptFuncs = template.FuncMap{
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
	"pct": func(v float64) string { return trimFloat(v) },
}

// trimFloat renders one decimal place without a trailing ".0".
func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}

var prompts = template.Must(template.New("advisor").Funcs(promptFuncs).Parse(`
{{define "irrigation"}}You are an AI assistant that controls a greenhouse water pump from soil moisture levels.

Decide whether the water pump should be ON or OFF and give a short reason.

Current data:
Soil Moisture: {{pct .SoilMoisture}}%
Optimal Moisture: {{pct .OptimalMoisture}}%
Current Pump Status: {{onOff .PumpStatus}}

Rules:
- If the soil moisture is well below the optimal level, turn the pump ON.
- If the soil moisture is at or above the optimal level, turn the pump OFF.
- If the pump is ON and the moisture is still below the optimal level, keep it ON.
- If the pump is OFF and the moisture is above the optimal level, keep it OFF.
{{end}}

{{define "climate"}}You are an AI assistant that controls a greenhouse grow light.

Decide whether the light should be ON or OFF using this rule:
- If the temperature is 33°C or higher AND the humidity is 85% or higher, the light must be OFF to reduce heat and stress.
- Otherwise the light should be ON to support crop growth.

Current data:
Temperature: {{pct .Temperature}}°C
Humidity: {{pct .Humidity}}%
Current Bulb Status: {{onOff .BulbStatus}}

Give the new bulb status and a clear reason.
{{end}}

{{define "best_practices"}}You are an expert agricultural advisor. Give the best practices for growing {{.Crop}}.
Answer in plain text without markdown, split into a watering schedule, soil health notes and general care.
{{end}}

{{define "rotation"}}You are an expert in crop rotation.

The current crop is {{.Crop}}. Recommend a {{.Seasons}}-season rotation plan that improves soil health and yield.
For each season give the recommended crop and the reasoning. Label the first season "Next Season", then "Season 2" and so on.
{{end}}

{{define "impact"}}You are an agricultural AI assistant.
Analyze these conditions for {{.Crop}} and say whether they are optimal and, if not, what the likely impact is.

Temperature: {{pct .Temperature}}°C
Humidity: {{pct .Humidity}}%
Soil Moisture: {{pct .SoilMoisture}}%

Answer with a single clear sentence.
{{end}}
`))

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
