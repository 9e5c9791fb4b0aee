package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Criticality levels.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"
)

// CriticalPathThreshold is the composite DREAD score from which a threat's
// components form a critical path.
const CriticalPathThreshold = 7.0

const topRisks = 5

var componentWeights = map[threatmodel.ComponentType]float64{
	threatmodel.TypeAuthService: 1.5,
	threatmodel.TypeAPIGateway:  1.4,
	threatmodel.TypeDatabase:    1.3,
	threatmodel.TypeBackend:     1.2,
	threatmodel.TypeFrontend:    1.0,
	threatmodel.TypeCache:       0.9,
	threatmodel.TypeStorage:     0.8,
	threatmodel.TypeCDN:         0.8,
}

var sensitivityIndicators = []string{
	"pii", "personal", "sensitive", "credential", "payment",
	"financial", "health", "password", "secret", "key",
}

// ComponentWeight is the risk multiplier of a component type
func ComponentWeight(t threatmodel.ComponentType) float64 {
	if w, ok := componentWeights[t]; ok {
		return w
	}
	return 1.0
}

// CriticalityLevel converts a criticality score to a level
func CriticalityLevel(score float64) string {
	switch {
	case score >= 8:
		return LevelCritical
	case score >= 6:
		return LevelHigh
	case score >= 4:
		return LevelMedium
	default:
		return LevelLow
	}
}

// severityBase stands in for a DREAD composite when a threat is unscored
func severityBase(s threatmodel.Severity) float64 {
	switch s {
	case threatmodel.SeverityCritical:
		return 9
	case threatmodel.SeverityHigh:
		return 7
	case threatmodel.SeverityMedium:
		return 5
	default:
		return 3
	}
}

// sensitivityFactor grows with sensitive-data terms in the application text
func sensitivityFactor(app threatmodel.Application) float64 {
	text := strings.ToLower(app.DataSensitivity + " " + app.Description)
	hits := 0
	for _, ind := range sensitivityIndicators {
		if strings.Contains(text, ind) {
			hits++
		}
	}
	if strings.EqualFold(app.DataSensitivity, "high") {
		hits++
	}
	return math.Min(2.0, 1.0+float64(hits)*0.2)
}

// Criticality weighs a threat's risk by the most critical component it
// touches and the sensitivity of the application's data, capped at 10.
func Criticality(m *threatmodel.ThreatModel, t threatmodel.Threat) float64 {
	base := severityBase(t.Severity)
	if s, ok := m.Score(t.ID); ok {
		base = s.Composite
	}

	weight := 0.0
	for _, id := range t.AffectedComponents {
		if c, ok := m.Component(id); ok {
			weight = math.Max(weight, ComponentWeight(c.Type))
		}
	}
	if weight == 0 {
		weight = 1.0
	}

	score := base * weight * sensitivityFactor(m.Application)
	return math.Min(10, math.Round(score*100)/100)
}

// Summarize computes the risk summary and improvement suggestions
func Summarize(m *threatmodel.ThreatModel) *threatmodel.ThreatModel {
	rs := &threatmodel.RiskSummary{
		Distribution: map[string]int{LevelCritical: 0, LevelHigh: 0, LevelMedium: 0, LevelLow: 0},
	}

	ranked := make([]threatmodel.RankedThreat, 0, len(m.Threats))
	counts := make(map[string]int)
	highest := 0.0

	for _, t := range m.Threats {
		score := Criticality(m, t)
		level := CriticalityLevel(score)
		rs.Distribution[level]++
		highest = math.Max(highest, score)

		ranked = append(ranked, threatmodel.RankedThreat{
			ThreatID:    t.ID,
			Title:       t.Title,
			Category:    t.Category,
			Score:       score,
			Criticality: level,
		})
		for _, id := range t.AffectedComponents {
			counts[id]++
		}

		if s, ok := m.Score(t.ID); ok && s.Composite >= CriticalPathThreshold {
			rs.CriticalPaths = append(rs.CriticalPaths, threatmodel.CriticalPath{
				ThreatID:   t.ID,
				Components: append([]string(nil), t.AffectedComponents...),
				Score:      s.Composite,
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topRisks {
		ranked = ranked[:topRisks]
	}
	rs.HighestRisks = ranked
	rs.OverallRisk = CriticalityLevel(highest)

	for _, c := range m.Components {
		if counts[c.ID] > 0 {
			rs.MostAffected = append(rs.MostAffected, threatmodel.ComponentExposure{
				ComponentID: c.ID,
				Name:        c.Name,
				ThreatCount: counts[c.ID],
			})
		}
	}
	sort.SliceStable(rs.MostAffected, func(i, j int) bool {
		return rs.MostAffected[i].ThreatCount > rs.MostAffected[j].ThreatCount
	})

	m.RiskSummary = rs
	m.ImprovementSuggestions = appendUnique(m.ImprovementSuggestions, Suggestions(m)...)
	return m
}

// Suggestions derives improvements from the architecture and its risks
func Suggestions(m *threatmodel.ThreatModel) []string {
	var out []string

	perComponent := make(map[string]int)
	for _, t := range m.Threats {
		if Criticality(m, t) >= CriticalPathThreshold {
			for _, id := range t.AffectedComponents {
				perComponent[id]++
			}
		}
	}
	for _, c := range m.Components {
		if n := perComponent[c.ID]; n > 0 {
			out = append(out, fmt.Sprintf("Prioritize security hardening for %s due to %d high-risk threat(s)", c.Name, n))
		}
	}

	hasGateway := false
	hasFrontend := false
	for _, c := range m.Components {
		switch c.Type {
		case threatmodel.TypeAPIGateway:
			hasGateway = true
		case threatmodel.TypeFrontend:
			hasFrontend = true
		}
	}
	if m.Application.InternetFacing && hasFrontend {
		out = append(out, "Consider implementing a Web Application Firewall (WAF)")
	}
	if !hasGateway && len(m.Components) > 2 {
		out = append(out, "Consider implementing an API Gateway for centralized security controls")
	}

	for _, c := range m.Components {
		for _, tech := range c.Technologies {
			switch strings.ToLower(tech) {
			case "mysql", "postgresql", "mongodb":
				out = append(out, "Implement database encryption at rest for "+c.Name)
			case "redis", "memcached":
				out = append(out, "Implement cache entry encryption for "+c.Name)
			case "oauth":
				out = append(out, "Implement OAuth 2.0 with PKCE for secure authentication")
			}
		}
	}
	return appendUnique(nil, out...)
}
