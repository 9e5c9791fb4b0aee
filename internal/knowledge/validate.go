package knowledge

import (
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// ValidationError represents a single validation error
type ValidationError struct {
	EntryID  string
	Field    string
	Message  string
	Severity string // "error" or "warning"
}

func (e ValidationError) String() string {
	return fmt.Sprintf("[%s] %s: %s - %s", e.Severity, e.EntryID, e.Field, e.Message)
}

// ValidationResult holds all validation errors for an entry
type ValidationResult struct {
	Source        string
	ComponentType string
	EntryID       string
	IsValid       bool
	Errors        []ValidationError
	Warnings      []ValidationError
}

// impactAxes are the recognised keys of an entry's impact map
var impactAxes = map[string]bool{
	"confidentiality": true,
	"integrity":       true,
	"availability":    true,
}

// Validate validates a single raw entry found under the given component type
func Validate(componentType string, e RawEntry) ValidationResult {
	result := ValidationResult{
		ComponentType: componentType,
		EntryID:       e.ID,
		IsValid:       true,
		Errors:        make([]ValidationError, 0),
		Warnings:      make([]ValidationError, 0),
	}

	result.checkRequired(e.ID, "id", e.ID)
	result.checkRequired(e.ID, "name", e.Name)
	result.checkRequired(e.ID, "category", e.Category)
	result.checkRequired(e.ID, "description", e.Description)
	result.checkRequired(e.ID, "severity", e.Severity)

	if threatmodel.NormalizeComponentType(componentType) == threatmodel.TypeCustom {
		result.addError(e.ID, "component_type", fmt.Sprintf("unknown component type %q", componentType))
	}

	if e.Category != "" {
		if _, ok := threatmodel.ParseCategory(e.Category); !ok {
			result.addError(e.ID, "category", fmt.Sprintf("%q is not a STRIDE category", e.Category))
		}
	}

	validSeverities := map[string]bool{"critical": true, "high": true, "medium": true, "low": true}
	if e.Severity != "" && !validSeverities[strings.ToLower(e.Severity)] {
		result.addError(e.ID, "severity", "must be critical, high, medium, or low")
	}

	if len(e.Mitigations) == 0 {
		result.addError(e.ID, "mitigations", "at least one mitigation required")
	}
	for i, m := range e.Mitigations {
		if strings.TrimSpace(m) == "" {
			result.addError(e.ID, fmt.Sprintf("mitigations[%d]", i), "empty mitigation")
		}
	}

	if len(e.Impact) == 0 {
		result.addWarning(e.ID, "impact", "no impact scores defined")
	}
	for axis, v := range e.Impact {
		if !impactAxes[strings.ToLower(axis)] {
			result.addWarning(e.ID, "impact."+axis, "unknown impact axis")
			continue
		}
		if v < 0 || v > 9 {
			result.addError(e.ID, "impact."+axis, fmt.Sprintf("must be between 0 and 9, got %d", v))
		}
	}

	if len(e.AttackVectors) == 0 {
		result.addWarning(e.ID, "attack_vectors", "no attack vectors defined")
	}
	if len(e.DetectionMethods) == 0 {
		result.addWarning(e.ID, "detection_methods", "recommended for triage")
	}

	for i, cve := range e.CVEs {
		if !strings.HasPrefix(strings.ToUpper(cve.ID), "CVE-") {
			result.addWarning(e.ID, fmt.Sprintf("cves[%d].cve_id", i), "should look like CVE-YYYY-NNNN")
		}
	}

	return result
}

// toEntry converts a raw entry that passed validation
func toEntry(componentType threatmodel.ComponentType, source string, e RawEntry) Entry {
	category, _ := threatmodel.ParseCategory(e.Category)
	impact := Impact{}
	for axis, v := range e.Impact {
		switch strings.ToLower(axis) {
		case "confidentiality":
			impact.Confidentiality = v
		case "integrity":
			impact.Integrity = v
		case "availability":
			impact.Availability = v
		}
	}

	return Entry{
		ComponentType:    componentType,
		TemplateID:       e.ID,
		Name:             strings.TrimSpace(e.Name),
		Category:         category,
		Description:      strings.TrimSpace(e.Description),
		AttackVectors:    e.AttackVectors,
		Prerequisites:    e.Prerequisites,
		Severity:         threatmodel.ParseSeverity(e.Severity),
		Impact:           impact,
		Mitigations:      e.Mitigations,
		DetectionMethods: e.DetectionMethods,
		CVEs:             e.CVEs,
		Source:           source,
	}
}

func (r *ValidationResult) checkRequired(entryID, field, value string) {
	if strings.TrimSpace(value) == "" {
		r.addError(entryID, field, "required field is empty")
	}
}

func (r *ValidationResult) addError(entryID, field, message string) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{
		EntryID:  entryID,
		Field:    field,
		Message:  message,
		Severity: "error",
	})
}

func (r *ValidationResult) addWarning(entryID, field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{
		EntryID:  entryID,
		Field:    field,
		Message:  message,
		Severity: "warning",
	})
}

// firstError summarizes the first validation error for a DataLoadError
func (r ValidationResult) firstError() error {
	if len(r.Errors) == 0 {
		return nil
	}
	e := r.Errors[0]
	if len(r.Errors) == 1 {
		return fmt.Errorf("%s: %s", e.Field, e.Message)
	}
	return fmt.Errorf("%s: %s (and %d more)", e.Field, e.Message, len(r.Errors)-1)
}
