// Package config holds the persisted settings surface consumed at
// startup. Fields are pointers so a partial JSON file is safe: the
// Get* accessors supply the default for anything unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings is the root configuration. The schema matches the
// /api/settings endpoint so the same JSON works for startup
// configuration and runtime updates.
type Settings struct {
	// Pipeline
	Mode         *string  `json:"mode,omitempty"` // "A" two-channel, "B" single-channel
	Filter       *string  `json:"filter,omitempty"`
	MovingAvgWin *int     `json:"moving_avg_window,omitempty"`
	MedianWin    *int     `json:"median_window,omitempty"`
	IIRAlpha     *float64 `json:"iir_alpha,omitempty"`
	KalmanQ      *float64 `json:"kalman_process_noise,omitempty"`
	KalmanR      *float64 `json:"kalman_measurement_noise,omitempty"`

	// Alerts
	PosThreshold *float64 `json:"pos_threshold,omitempty"`
	NegThreshold *float64 `json:"neg_threshold,omitempty"`
	HapticAlerts *bool    `json:"haptic_alerts,omitempty"`
	AudioAlerts  *bool    `json:"audio_alerts,omitempty"`

	// Display and recording
	MaxDisplayPoints *int     `json:"max_display_points,omitempty"`
	AutoStride       *int     `json:"auto_record_stride,omitempty"`
	GridSpacingCM    *float64 `json:"grid_spacing_cm,omitempty"`
}

// EmptySettings returns a Settings with every field unset.
func EmptySettings() *Settings {
	return &Settings{}
}

// LoadSettings loads Settings from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func LoadSettings(path string) (*Settings, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("settings file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	s := EmptySettings()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// ApplyStored overlays settings persisted as key/value rows (the
// database settings table) on top of the file-loaded values, so
// runtime changes made through the API survive a restart. Row values
// are plain strings; each is taken as a JSON literal when it parses as
// one and as a JSON string otherwise, then the whole set is
// unmarshalled through the normal Settings schema.
func (s *Settings) ApplyStored(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	obj := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		if json.Valid([]byte(v)) {
			obj[k] = json.RawMessage(v)
			continue
		}
		quoted, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode stored setting %s: %w", k, err)
		}
		obj[k] = quoted
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode stored settings: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to apply stored settings: %w", err)
	}
	return s.Validate()
}

// Validate checks that set fields hold usable values.
func (s *Settings) Validate() error {
	if s.Mode != nil && *s.Mode != "A" && *s.Mode != "B" {
		return fmt.Errorf("mode must be \"A\" or \"B\", got %q", *s.Mode)
	}
	if s.IIRAlpha != nil && (*s.IIRAlpha <= 0 || *s.IIRAlpha > 1) {
		return fmt.Errorf("iir_alpha must be in (0, 1], got %v", *s.IIRAlpha)
	}
	if s.MovingAvgWin != nil && *s.MovingAvgWin < 1 {
		return fmt.Errorf("moving_avg_window must be >= 1, got %d", *s.MovingAvgWin)
	}
	if s.MedianWin != nil && *s.MedianWin < 1 {
		return fmt.Errorf("median_window must be >= 1, got %d", *s.MedianWin)
	}
	if s.KalmanQ != nil && *s.KalmanQ < 0 {
		return fmt.Errorf("kalman_process_noise must be >= 0, got %v", *s.KalmanQ)
	}
	if s.KalmanR != nil && *s.KalmanR <= 0 {
		return fmt.Errorf("kalman_measurement_noise must be > 0, got %v", *s.KalmanR)
	}
	if s.AutoStride != nil && *s.AutoStride < 1 {
		return fmt.Errorf("auto_record_stride must be >= 1, got %d", *s.AutoStride)
	}
	if s.MaxDisplayPoints != nil && *s.MaxDisplayPoints < 1 {
		return fmt.Errorf("max_display_points must be >= 1, got %d", *s.MaxDisplayPoints)
	}
	return nil
}

// GetMode returns the mode tag or the default.
func (s *Settings) GetMode() string {
	if s.Mode == nil {
		return "A"
	}
	return *s.Mode
}

// GetFilter returns the filter name or the default.
func (s *Settings) GetFilter() string {
	if s.Filter == nil {
		return "none"
	}
	return *s.Filter
}

// GetMovingAvgWin returns the moving-average window or the default.
func (s *Settings) GetMovingAvgWin() int {
	if s.MovingAvgWin == nil {
		return 8
	}
	return *s.MovingAvgWin
}

// GetMedianWin returns the median window or the default.
func (s *Settings) GetMedianWin() int {
	if s.MedianWin == nil {
		return 5
	}
	return *s.MedianWin
}

// GetIIRAlpha returns the IIR smoothing coefficient or the default.
func (s *Settings) GetIIRAlpha() float64 {
	if s.IIRAlpha == nil {
		return 0.25
	}
	return *s.IIRAlpha
}

// GetKalmanQ returns the Kalman process noise or the default.
func (s *Settings) GetKalmanQ() float64 {
	if s.KalmanQ == nil {
		return 0.05
	}
	return *s.KalmanQ
}

// GetKalmanR returns the Kalman measurement noise or the default.
func (s *Settings) GetKalmanR() float64 {
	if s.KalmanR == nil {
		return 2.0
	}
	return *s.KalmanR
}

// GetPosThreshold returns the positive alert bound or the default.
func (s *Settings) GetPosThreshold() float64 {
	if s.PosThreshold == nil {
		return 50
	}
	return *s.PosThreshold
}

// GetNegThreshold returns the negative alert bound or the default.
func (s *Settings) GetNegThreshold() float64 {
	if s.NegThreshold == nil {
		return -50
	}
	return *s.NegThreshold
}

// GetHapticAlerts reports whether haptic alerts are enabled (default on).
func (s *Settings) GetHapticAlerts() bool {
	if s.HapticAlerts == nil {
		return true
	}
	return *s.HapticAlerts
}

// GetAudioAlerts reports whether audio alerts are enabled (default off).
func (s *Settings) GetAudioAlerts() bool {
	if s.AudioAlerts == nil {
		return false
	}
	return *s.AudioAlerts
}

// GetMaxDisplayPoints returns the display ring size or the default.
func (s *Settings) GetMaxDisplayPoints() int {
	if s.MaxDisplayPoints == nil {
		return 600
	}
	return *s.MaxDisplayPoints
}

// GetAutoStride returns the auto-record stride or the default.
func (s *Settings) GetAutoStride() int {
	if s.AutoStride == nil {
		return 6
	}
	return *s.AutoStride
}

// GetGridSpacingCM returns the grid spacing or the default.
func (s *Settings) GetGridSpacingCM() float64 {
	if s.GridSpacingCM == nil {
		return 50
	}
	return *s.GridSpacingCM
}
