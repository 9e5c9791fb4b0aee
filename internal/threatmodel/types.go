package threatmodel

import (
	"strings"
)

// SchemaVersion identifies the layout of a serialized ThreatModel.
const SchemaVersion = "1"

// ComponentType is a normalized architecture component kind
type ComponentType string

// Component type vocabulary. Knowledge base lookups are keyed by these values.
const (
	TypeFrontend     ComponentType = "frontend"
	TypeBackend      ComponentType = "backend"
	TypeDatabase     ComponentType = "database"
	TypeAPIGateway   ComponentType = "api_gateway"
	TypeAuthService  ComponentType = "auth_service"
	TypeStorage      ComponentType = "storage"
	TypeCache        ComponentType = "cache"
	TypeLoadBalancer ComponentType = "load_balancer"
	TypeCDN          ComponentType = "cdn"
	TypeMessageQueue ComponentType = "message_queue"
	TypeCustom       ComponentType = "custom"
)

// ComponentTypes lists every known type except custom
var ComponentTypes = []ComponentType{
	TypeFrontend,
	TypeBackend,
	TypeDatabase,
	TypeAPIGateway,
	TypeAuthService,
	TypeStorage,
	TypeCache,
	TypeLoadBalancer,
	TypeCDN,
	TypeMessageQueue,
}

var componentTypeAliases = map[string]ComponentType{
	"frontend":               TypeFrontend,
	"front_end":              TypeFrontend,
	"ui":                     TypeFrontend,
	"user_interface":         TypeFrontend,
	"web_app":                TypeFrontend,
	"web_application":        TypeFrontend,
	"web_client":             TypeFrontend,
	"client":                 TypeFrontend,
	"spa":                    TypeFrontend,
	"web_ui":                 TypeFrontend,
	"backend":                TypeBackend,
	"back_end":               TypeBackend,
	"server":                 TypeBackend,
	"application_server":     TypeBackend,
	"app_server":             TypeBackend,
	"api_server":             TypeBackend,
	"web_server":             TypeBackend,
	"backend_service":        TypeBackend,
	"microservice":           TypeBackend,
	"api":                    TypeBackend,
	"database":               TypeDatabase,
	"db":                     TypeDatabase,
	"rdbms":                  TypeDatabase,
	"sql_database":           TypeDatabase,
	"nosql_database":         TypeDatabase,
	"data_store":             TypeDatabase,
	"datastore":              TypeDatabase,
	"api_gateway":            TypeAPIGateway,
	"gateway":                TypeAPIGateway,
	"reverse_proxy":          TypeAPIGateway,
	"api_proxy":              TypeAPIGateway,
	"auth_service":           TypeAuthService,
	"authentication_service": TypeAuthService,
	"authentication":         TypeAuthService,
	"auth":                   TypeAuthService,
	"identity_provider":      TypeAuthService,
	"idp":                    TypeAuthService,
	"login":                  TypeAuthService,
	"sso":                    TypeAuthService,
	"storage":                TypeStorage,
	"blob_storage":           TypeStorage,
	"object_storage":         TypeStorage,
	"file_storage":           TypeStorage,
	"azure_storage":          TypeStorage,
	"s3":                     TypeStorage,
	"cache":                  TypeCache,
	"caching_layer":          TypeCache,
	"distributed_cache":      TypeCache,
	"load_balancer":          TypeLoadBalancer,
	"lb":                     TypeLoadBalancer,

	"cdn":                      TypeCDN,
	"content_delivery_network": TypeCDN,

	"message_queue":  TypeMessageQueue,
	"queue":          TypeMessageQueue,
	"message_broker": TypeMessageQueue,
	"broker":         TypeMessageQueue,
	"event_bus":      TypeMessageQueue,
}

// NormalizeComponentType maps a free-form component type or name onto the
// vocabulary. Unknown names map to TypeCustom.
func NormalizeComponentType(s string) ComponentType {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_", "/", "_").Replace(key)
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	if t, ok := componentTypeAliases[key]; ok {
		return t
	}
	return TypeCustom
}

// Category is one of the six STRIDE threat categories
type Category string

// STRIDE categories.
const (
	Spoofing              Category = "Spoofing"
	Tampering             Category = "Tampering"
	Repudiation           Category = "Repudiation"
	InformationDisclosure Category = "Information Disclosure"
	DenialOfService       Category = "Denial of Service"
	ElevationOfPrivilege  Category = "Elevation of Privilege"
)

// Categories lists the STRIDE categories in canonical order
var Categories = []Category{
	Spoofing,
	Tampering,
	Repudiation,
	InformationDisclosure,
	DenialOfService,
	ElevationOfPrivilege,
}

var categoryPrefixes = map[Category]string{
	Spoofing:              "SPF",
	Tampering:             "TMP",
	Repudiation:           "REP",
	InformationDisclosure: "INF",
	DenialOfService:       "DOS",
	ElevationOfPrivilege:  "EOP",
}

var categoryAliases = map[string]Category{
	"spoofing":              Spoofing,
	"spoof":                 Spoofing,
	"s":                     Spoofing,
	"tampering":             Tampering,
	"tamper":                Tampering,
	"t":                     Tampering,
	"repudiation":           Repudiation,
	"r":                     Repudiation,
	"informationdisclosure": InformationDisclosure,
	"infodisclosure":        InformationDisclosure,
	"disclosure":            InformationDisclosure,
	"i":                     InformationDisclosure,
	"denialofservice":       DenialOfService,
	"dos":                   DenialOfService,
	"d":                     DenialOfService,
	"elevationofprivilege":  ElevationOfPrivilege,
	"elevationofprivileges": ElevationOfPrivilege,
	"privilegeescalation":   ElevationOfPrivilege,
	"eop":                   ElevationOfPrivilege,
	"e":                     ElevationOfPrivilege,
}

// ParseCategory resolves a STRIDE category from model or data file text.
// Case, spacing and punctuation are ignored.
func ParseCategory(s string) (Category, bool) {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	c, ok := categoryAliases[b.String()]
	return c, ok
}

// Valid reports whether c is a canonical STRIDE category
func (c Category) Valid() bool {
	_, ok := categoryPrefixes[c]
	return ok
}

// Prefix returns the short id prefix for the category
func (c Category) Prefix() string {
	return categoryPrefixes[c]
}

// Severity is a qualitative threat severity
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity normalizes a severity string, defaulting to medium
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "low":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Rank orders severities, critical first
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Source records where a threat came from
type Source string

// Threat sources.
const (
	SourceKnowledgeBase  Source = "knowledge_base"
	SourceModelGenerated Source = "model_generated"
	SourceMerged         Source = "merged"
)

// Component is a detected architecture component
type Component struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         ComponentType `json:"type"`
	Technologies []string      `json:"technologies,omitempty"`
	Confidence   float64       `json:"confidence,omitempty"`
	Origin       string        `json:"origin,omitempty"`
}

// Threat is a compiled STRIDE threat
type Threat struct {
	ID                 string   `json:"id"`
	Category           Category `json:"category"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AffectedComponents []string `json:"affected_components"`
	Source             Source   `json:"source"`
	Severity           Severity `json:"severity"`
	AttackVectors      []string `json:"attack_vectors,omitempty"`
	Mitigations        []string `json:"mitigations,omitempty"`
	GenericMitigation  bool     `json:"generic_mitigation,omitempty"`
	TemplateIDs        []string `json:"template_ids,omitempty"`
}

// TestCase is a Gherkin-style security test for one threat
type TestCase struct {
	ID             string `json:"id"`
	ThreatID       string `json:"threat_id"`
	Scenario       string `json:"scenario"`
	ExpectedResult string `json:"expected_result"`
}

// Application carries the user supplied application metadata
type Application struct {
	Name            string   `json:"name"`
	Type            string   `json:"type,omitempty"`
	Description     string   `json:"description"`
	Authentication  []string `json:"authentication,omitempty"`
	DataSensitivity string   `json:"data_sensitivity,omitempty"`
	InternetFacing  bool     `json:"internet_facing"`
}

// Answer is an owner's reply to a contextual question
type Answer struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// TechnologyFinding is a technology recognized in the input and what it implies
type TechnologyFinding struct {
	Name         string        `json:"name"`
	Category     string        `json:"category"`
	ComponentID  string        `json:"component_id,omitempty"`
	Implications []string      `json:"implications,omitempty"`
	Type         ComponentType `json:"component_type,omitempty"`
}
