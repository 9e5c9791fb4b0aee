package knowledge

import (
	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Document is one knowledge base source file, JSON or YAML
type Document struct {
	Components map[string]ComponentProfile `yaml:"components" json:"components"`
}

// ComponentProfile describes everything known about one component type
type ComponentProfile struct {
	Type                   string              `yaml:"type" json:"type"`
	CommonThreats          []RawEntry          `yaml:"common_threats" json:"common_threats"`
	SecurityConsiderations []string            `yaml:"security_considerations" json:"security_considerations"`
	BestPractices          []string            `yaml:"best_practices" json:"best_practices"`
	ComplianceRequirements map[string][]string `yaml:"compliance_requirements,omitempty" json:"compliance_requirements,omitempty"`
}

// RawEntry is a threat template as written in a data file, before validation
type RawEntry struct {
	ID                 string         `yaml:"id" json:"id"`
	Name               string         `yaml:"name" json:"name"`
	Category           string         `yaml:"category" json:"category"`
	Description        string         `yaml:"description" json:"description"`
	AttackVectors      []string       `yaml:"attack_vectors" json:"attack_vectors"`
	Prerequisites      []string       `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
	Severity           string         `yaml:"severity" json:"severity"`
	Impact             map[string]int `yaml:"impact" json:"impact"`
	Mitigations        []string       `yaml:"mitigations" json:"mitigations"`
	CVEs               []CVE          `yaml:"cves,omitempty" json:"cves,omitempty"`
	AffectedComponents []string       `yaml:"affected_components,omitempty" json:"affected_components,omitempty"`
	DetectionMethods   []string       `yaml:"detection_methods,omitempty" json:"detection_methods,omitempty"`
}

// CVE is a known vulnerability linked to a threat template
type CVE struct {
	ID               string   `yaml:"cve_id" json:"cve_id"`
	Description      string   `yaml:"description" json:"description"`
	Severity         string   `yaml:"severity" json:"severity"`
	AffectedVersions []string `yaml:"affected_versions,omitempty" json:"affected_versions,omitempty"`
	Mitigation       string   `yaml:"mitigation" json:"mitigation"`
	References       []string `yaml:"references,omitempty" json:"references,omitempty"`
}

// Impact scores confidentiality, integrity and availability damage, each 0-9
type Impact struct {
	Confidentiality int `json:"confidentiality"`
	Integrity       int `json:"integrity"`
	Availability    int `json:"availability"`
}

// Entry is a validated threat template keyed by component type
type Entry struct {
	ComponentType    threatmodel.ComponentType `json:"component_type"`
	TemplateID       string                    `json:"threat_template_id"`
	Name             string                    `json:"name"`
	Category         threatmodel.Category      `json:"category"`
	Description      string                    `json:"description"`
	AttackVectors    []string                  `json:"attack_vectors"`
	Prerequisites    []string                  `json:"prerequisites,omitempty"`
	Severity         threatmodel.Severity      `json:"severity"`
	Impact           Impact                    `json:"impact"`
	Mitigations      []string                  `json:"mitigations"`
	DetectionMethods []string                  `json:"detection_methods,omitempty"`
	CVEs             []CVE                     `json:"cves,omitempty"`
	Source           string                    `json:"source,omitempty"`
}

// Key identifies the entry across the whole knowledge base. Template ids are
// only unique within a component type.
func (e Entry) Key() string {
	return TemplateKey(e.ComponentType, e.TemplateID)
}

// TemplateKey qualifies a template id with its component type
func TemplateKey(ct threatmodel.ComponentType, templateID string) string {
	return string(ct) + "/" + templateID
}

// Profile is the non-threat guidance for a component type
type Profile struct {
	ComponentType          threatmodel.ComponentType `json:"component_type"`
	SecurityConsiderations []string                  `json:"security_considerations,omitempty"`
	BestPractices          []string                  `json:"best_practices,omitempty"`
	ComplianceRequirements map[string][]string       `json:"compliance_requirements,omitempty"`
}
