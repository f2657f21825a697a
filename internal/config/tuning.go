package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning carries the numeric knobs of the evaluation and prediction formulas.
// The defaults below are tuning values, not contractual business rules; a
// deployment overrides them through a YAML file referenced by SLA_TUNING_PATH.
type Tuning struct {
	BusinessHours       BusinessHoursConfig  `yaml:"business_hours"`
	RiskThresholds      RiskThresholdsConfig `yaml:"risk_thresholds"`
	RiskWeights         RiskWeightsConfig    `yaml:"risk_weights"`
	RiskScoreBands      RiskScoreBandsConfig `yaml:"risk_score_bands"`
	ConfidenceThreshold float64              `yaml:"confidence_threshold"`
	OverloadRatio       float64              `yaml:"overload_ratio"`
}

// BusinessHoursConfig defines which wall-clock minutes consume SLA budget.
type BusinessHoursConfig struct {
	StartHour int      `yaml:"start_hour"`
	EndHour   int      `yaml:"end_hour"`
	Weekdays  []string `yaml:"weekdays"`
	Timezone  string   `yaml:"timezone"`
	Holidays  []string `yaml:"holidays"`
}

// RiskThresholdsConfig maps remaining/target ratios to risk levels. A ratio
// above Low is low risk, above Medium is medium, above High is high, anything
// below High is critical.
type RiskThresholdsConfig struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// RiskWeightsConfig weights the named breach-prediction risk factors.
type RiskWeightsConfig struct {
	HighPriorityTicket float64 `yaml:"high_priority_ticket"`
	ComplexCategory    float64 `yaml:"complex_category"`
	TechnicianOverload float64 `yaml:"technician_overload"`
	HistoricalDelays   float64 `yaml:"historical_delays"`
	TimeOfDay          float64 `yaml:"time_of_day"`
}

// Sum totals the configured weights.
func (w RiskWeightsConfig) Sum() float64 {
	return w.HighPriorityTicket + w.ComplexCategory + w.TechnicianOverload + w.HistoricalDelays + w.TimeOfDay
}

// RiskScoreBandsConfig maps a total risk score onto a risk level. A score at
// or above Critical is critical, above High is high, above Medium is medium,
// anything below Medium is low.
type RiskScoreBandsConfig struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// DefaultTuning returns the built-in tuning values.
func DefaultTuning() Tuning {
	return Tuning{
		BusinessHours: BusinessHoursConfig{
			StartHour: 9,
			EndHour:   17,
			Weekdays:  []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
			Timezone:  "UTC",
		},
		RiskThresholds: RiskThresholdsConfig{
			Low:    0.5,
			Medium: 0.25,
			High:   0.1,
		},
		RiskWeights: RiskWeightsConfig{
			HighPriorityTicket: 0.3,
			ComplexCategory:    0.2,
			TechnicianOverload: 0.25,
			HistoricalDelays:   0.15,
			TimeOfDay:          0.1,
		},
		RiskScoreBands: RiskScoreBandsConfig{
			Critical: 0.7,
			High:     0.5,
			Medium:   0.3,
		},
		ConfidenceThreshold: 0.7,
		OverloadRatio:       0.8,
	}
}

// LoadTuning reads a YAML tuning file over the defaults. An empty path yields
// the defaults unchanged.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return tuning, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &tuning); err != nil {
		return tuning, fmt.Errorf("parse tuning file: %w", err)
	}
	if err := tuning.Validate(); err != nil {
		return tuning, err
	}
	return tuning, nil
}

// Validate rejects tuning values the formulas cannot work with.
func (t Tuning) Validate() error {
	if t.BusinessHours.StartHour < 0 || t.BusinessHours.EndHour > 24 || t.BusinessHours.StartHour >= t.BusinessHours.EndHour {
		return fmt.Errorf("business hours window [%d,%d) invalid", t.BusinessHours.StartHour, t.BusinessHours.EndHour)
	}
	if !(t.RiskThresholds.Low > t.RiskThresholds.Medium && t.RiskThresholds.Medium > t.RiskThresholds.High && t.RiskThresholds.High > 0) {
		return fmt.Errorf("risk thresholds must be strictly ordered low > medium > high > 0")
	}
	if t.RiskWeights.Sum() > 1.0 {
		return fmt.Errorf("risk factor weights sum to %.2f, must not exceed 1.0", t.RiskWeights.Sum())
	}
	if !(t.RiskScoreBands.Critical > t.RiskScoreBands.High && t.RiskScoreBands.High > t.RiskScoreBands.Medium && t.RiskScoreBands.Medium > 0) {
		return fmt.Errorf("risk score bands must be strictly ordered critical > high > medium > 0")
	}
	if t.ConfidenceThreshold < 0 || t.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1]")
	}
	return nil
}
