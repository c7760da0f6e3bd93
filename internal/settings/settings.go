// Package settings is the boundary to the external settings store. The
// controller reads one record at attach and writes it back only on
// keyboard-driven speed changes. Malformed or missing records normalize
// to defaults; storage trouble never blocks video detection.
package settings

import (
	"context"
	"math"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

// Rate bounds shared by every speed entry point.
const (
	MinSpeed = 0.1
	MaxSpeed = 16.0
)

// CurrentVersion is written into records saved by this build.
const CurrentVersion = "1.0"

// Settings is the single stored record.
type Settings struct {
	Speed             float64 `json:"speed"`
	SaveSpeed         bool    `json:"saveSpeed"`
	ShowIndicator     bool    `json:"showIndicator"`
	IndicatorPosition string  `json:"indicatorPosition"`
	Version           string  `json:"version"`
}

// Defaults returns the built-in record used when the store is empty or
// unreadable.
func Defaults() Settings {
	return Settings{
		Speed:             1.0,
		SaveSpeed:         true,
		ShowIndicator:     true,
		IndicatorPosition: dom.PosBottomLeft,
		Version:           CurrentVersion,
	}
}

// ClampSpeed clamps to [MinSpeed, MaxSpeed] and rounds to hundredths.
// NaN and non-positive values collapse to MinSpeed.
func ClampSpeed(v float64) float64 {
	if math.IsNaN(v) || v < MinSpeed {
		v = MinSpeed
	}
	if v > MaxSpeed {
		v = MaxSpeed
	}
	return math.Round(v*100) / 100
}

// ValidPosition reports whether p is a known indicator position.
func ValidPosition(p string) bool {
	switch p {
	case dom.PosTopLeft, dom.PosTopRight, dom.PosBottomLeft, dom.PosBottomRight, dom.PosCenter:
		return true
	}
	return false
}

// Normalize repairs a record in place of rejecting it: out-of-range speeds
// are clamped, unknown positions fall back to the default corner, and a
// missing version is stamped with the current one.
func Normalize(s Settings) Settings {
	d := Defaults()
	if s.Speed == 0 || math.IsNaN(s.Speed) || math.IsInf(s.Speed, 0) {
		s.Speed = d.Speed
	}
	s.Speed = ClampSpeed(s.Speed)
	if !ValidPosition(s.IndicatorPosition) {
		s.IndicatorPosition = d.IndicatorPosition
	}
	if s.Version == "" {
		s.Version = CurrentVersion
	}
	return s
}

// Store is the external key-value collaborator.
type Store interface {
	// Load returns the stored record, normalized. On any failure it
	// returns Defaults() alongside the error so callers can proceed.
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}
