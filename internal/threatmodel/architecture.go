package threatmodel

import (
	"fmt"
	"slices"
	"strings"
)

// Trust zone types, from least to most trusted.
const (
	ZonePublic     = "public"
	ZoneDMZ        = "dmz"
	ZonePrivate    = "private"
	ZoneRestricted = "restricted"
)

// ExternalUser is the flow endpoint standing for the application's users
const ExternalUser = "user"

// DataFlow is one movement of data between two endpoints. Endpoints are
// component ids or the names of external entities.
type DataFlow struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	DataType    string `json:"data_type,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	// Sensitivity is high, medium or low.
	Sensitivity string `json:"sensitivity,omitempty"`
	// Bidirectional flows are drawn with arrows at both ends.
	Bidirectional bool `json:"bidirectional,omitempty"`
}

// Sensitive reports whether the flow carries high-sensitivity data
func (f DataFlow) Sensitive() bool {
	return strings.EqualFold(f.Sensitivity, "high")
}

// TrustZone groups components that share a level of trust
type TrustZone struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Components    []string `json:"components"`
	SecurityLevel string   `json:"security_level,omitempty"`
}

// TrustBoundary separates two or more trust zones
type TrustBoundary struct {
	ID               string   `json:"id"`
	Type             string   `json:"type,omitempty"`
	Location         string   `json:"location,omitempty"`
	ConnectedZones   []string `json:"connected_zones"`
	SecurityControls []string `json:"security_controls,omitempty"`
}

// Architecture is the data-flow view of the system: how data moves between
// components and where trust changes along the way.
type Architecture struct {
	DataFlows       []DataFlow      `json:"data_flows"`
	TrustZones      []TrustZone     `json:"trust_zones"`
	TrustBoundaries []TrustBoundary `json:"trust_boundaries"`
	// Fallback marks an architecture inferred from component types alone.
	Fallback bool `json:"fallback,omitempty"`
}

// Empty reports whether nothing is known about the data flows
func (a Architecture) Empty() bool {
	return len(a.DataFlows) == 0 && len(a.TrustZones) == 0 && len(a.TrustBoundaries) == 0
}

// Zone returns the name of the trust zone holding a component
func (a Architecture) Zone(componentID string) (string, bool) {
	for _, z := range a.TrustZones {
		if slices.Contains(z.Components, componentID) {
			return z.Name, true
		}
	}
	return "", false
}

// CrossingFlows returns the flows whose endpoints sit in different zones
func (a Architecture) CrossingFlows() []DataFlow {
	var out []DataFlow
	for _, f := range a.DataFlows {
		src, _ := a.Zone(f.Source)
		dst, _ := a.Zone(f.Destination)
		if src != dst {
			out = append(out, f)
		}
	}
	return out
}

func (a Architecture) clone() Architecture {
	c := a
	c.DataFlows = slices.Clone(a.DataFlows)
	if a.TrustZones != nil {
		c.TrustZones = make([]TrustZone, len(a.TrustZones))
		for i, z := range a.TrustZones {
			z.Components = slices.Clone(z.Components)
			c.TrustZones[i] = z
		}
	}
	if a.TrustBoundaries != nil {
		c.TrustBoundaries = make([]TrustBoundary, len(a.TrustBoundaries))
		for i, b := range a.TrustBoundaries {
			b.ConnectedZones = slices.Clone(b.ConnectedZones)
			b.SecurityControls = slices.Clone(b.SecurityControls)
			c.TrustBoundaries[i] = b
		}
	}
	return c
}

// validate checks that every component reference resolves. Flow endpoints
// outside the component set are external entities and are allowed.
func (a Architecture) validate(components map[string]bool) []error {
	var errs []error
	zones := make(map[string]bool, len(a.TrustZones))
	for _, z := range a.TrustZones {
		if zones[z.Name] {
			errs = append(errs, fmt.Errorf("duplicate trust zone %s", z.Name))
		}
		zones[z.Name] = true
		for _, id := range z.Components {
			if !components[id] {
				errs = append(errs, fmt.Errorf("trust zone %s: unknown component %s", z.Name, id))
			}
		}
	}
	for _, b := range a.TrustBoundaries {
		for _, z := range b.ConnectedZones {
			if !zones[z] {
				errs = append(errs, fmt.Errorf("trust boundary %s: unknown zone %s", b.ID, z))
			}
		}
	}
	for i, f := range a.DataFlows {
		if f.Source == "" || f.Destination == "" {
			errs = append(errs, fmt.Errorf("data flow %d: missing endpoint", i+1))
		}
	}
	return errs
}

type tier struct {
	zone  string
	level string
	types []ComponentType
}

var tiers = []tier{
	{zone: ZoneDMZ, level: "medium", types: []ComponentType{TypeCDN, TypeLoadBalancer, TypeFrontend, TypeAPIGateway}},
	{zone: ZonePrivate, level: "high", types: []ComponentType{TypeBackend, TypeAuthService, TypeMessageQueue, TypeCache, TypeCustom}},
	{zone: ZoneRestricted, level: "critical", types: []ComponentType{TypeDatabase, TypeStorage}},
}

// FallbackArchitecture infers zones, boundaries and flows from component
// types. Users reach the outermost tier; every component talks to each
// component of the next populated tier inward.
func FallbackArchitecture(app Application, components []Component) Architecture {
	arch := Architecture{
		DataFlows:       []DataFlow{},
		TrustZones:      []TrustZone{},
		TrustBoundaries: []TrustBoundary{},
		Fallback:        true,
	}

	var populated [][]Component
	for _, t := range tiers {
		var members []Component
		for _, c := range components {
			if slices.Contains(t.types, c.Type) {
				members = append(members, c)
			}
		}
		if len(members) == 0 {
			continue
		}
		ids := make([]string, len(members))
		for i, c := range members {
			ids[i] = c.ID
		}
		arch.TrustZones = append(arch.TrustZones, TrustZone{Name: t.zone, Type: t.zone, Components: ids, SecurityLevel: t.level})
		populated = append(populated, members)
	}
	if len(populated) == 0 {
		return arch
	}

	sensitivity := "medium"
	if strings.Contains(strings.ToLower(app.DataSensitivity), "high") ||
		strings.Contains(strings.ToLower(app.DataSensitivity), "pii") {
		sensitivity = "high"
	}

	if app.InternetFacing {
		arch.TrustZones = append([]TrustZone{{Name: ZonePublic, Type: ZonePublic, Components: []string{}, SecurityLevel: "low"}}, arch.TrustZones...)
		for _, c := range populated[0] {
			arch.DataFlows = append(arch.DataFlows, DataFlow{
				Source: ExternalUser, Destination: c.ID, DataType: "user requests",
				Protocol: "HTTPS", Sensitivity: sensitivity, Bidirectional: true,
			})
		}
	}

	for i := 0; i+1 < len(populated); i++ {
		for _, from := range populated[i] {
			for _, to := range populated[i+1] {
				df := DataFlow{Source: from.ID, Destination: to.ID, DataType: "application data", Sensitivity: sensitivity, Bidirectional: true}
				if to.Type == TypeDatabase || to.Type == TypeStorage {
					df.DataType = "stored records"
					df.Sensitivity = "high"
				}
				arch.DataFlows = append(arch.DataFlows, df)
			}
		}
	}

	for i := 0; i+1 < len(arch.TrustZones); i++ {
		outer, inner := arch.TrustZones[i], arch.TrustZones[i+1]
		arch.TrustBoundaries = append(arch.TrustBoundaries, TrustBoundary{
			ID:             fmt.Sprintf("TB-%d", i+1),
			Type:           "network",
			Location:       outer.Name + " to " + inner.Name,
			ConnectedZones: []string{outer.Name, inner.Name},
		})
	}
	return arch
}
