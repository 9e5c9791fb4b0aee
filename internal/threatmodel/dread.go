package threatmodel

import (
	"fmt"
	"math"
)

// DREAD field bounds.
const (
	MinDread = 1
	MaxDread = 10
)

// DreadScore is the DREAD risk rating of one threat
type DreadScore struct {
	ThreatID        string  `json:"threat_id"`
	Damage          int     `json:"damage"`
	Reproducibility int     `json:"reproducibility"`
	Exploitability  int     `json:"exploitability"`
	AffectedUsers   int     `json:"affected_users"`
	Discoverability int     `json:"discoverability"`
	Composite       float64 `json:"composite"`
}

// NewDreadScore builds a complete score. Each field is clamped to [1,10] and
// the composite is the mean of the five fields.
func NewDreadScore(threatID string, damage, reproducibility, exploitability, affectedUsers, discoverability int) DreadScore {
	s := DreadScore{
		ThreatID:        threatID,
		Damage:          ClampDread(damage),
		Reproducibility: ClampDread(reproducibility),
		Exploitability:  ClampDread(exploitability),
		AffectedUsers:   ClampDread(affectedUsers),
		Discoverability: ClampDread(discoverability),
	}
	s.Composite = s.mean()
	return s
}

// ClampDread limits v to the DREAD range
func ClampDread(v int) int {
	if v < MinDread {
		return MinDread
	}
	if v > MaxDread {
		return MaxDread
	}
	return v
}

func (s DreadScore) mean() float64 {
	sum := s.Damage + s.Reproducibility + s.Exploitability + s.AffectedUsers + s.Discoverability
	return float64(sum) / 5.0
}

// Validate checks field ranges and the composite
func (s DreadScore) Validate() error {
	fields := map[string]int{
		"damage":          s.Damage,
		"reproducibility": s.Reproducibility,
		"exploitability":  s.Exploitability,
		"affected_users":  s.AffectedUsers,
		"discoverability": s.Discoverability,
	}
	for name, v := range fields {
		if v < MinDread || v > MaxDread {
			return fmt.Errorf("dread %s: %s=%d out of range", s.ThreatID, name, v)
		}
	}
	if math.Abs(s.Composite-s.mean()) > 1e-9 {
		return fmt.Errorf("dread %s: composite %.2f is not the mean %.2f", s.ThreatID, s.Composite, s.mean())
	}
	return nil
}
