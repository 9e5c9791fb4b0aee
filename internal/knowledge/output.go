package knowledge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// OutputFormat specifies the output format
type OutputFormat string

// Output format constants.
const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// FormatOutput formats a query result for display
func FormatOutput(result QueryResult, format OutputFormat) (string, error) {
	switch format {
	case FormatText:
		return formatText(result), nil
	default:
		return formatJSON(result)
	}
}

func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatText(result QueryResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Found %d relevant threat template(s)\n", result.EntryCount))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	for i, e := range result.Entries {
		sb.WriteString(fmt.Sprintf("[%d] %s (%s, %s)\n", i+1, e.TemplateID, e.ComponentType, e.Severity))
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		sb.WriteString(fmt.Sprintf("THREAT:   %s\n", e.Threat))
		sb.WriteString(fmt.Sprintf("CATEGORY: %s\n", e.Category))
		if e.Fix != "" {
			sb.WriteString(fmt.Sprintf("FIX:      %s\n", e.Fix))
		}
		sb.WriteString("\n")
	}

	for i := range result.VerboseEntries {
		sb.WriteString(formatEntryText(&result.VerboseEntries[i]))
		sb.WriteString("\n")
	}

	if result.TokenLimitReached {
		sb.WriteString(fmt.Sprintf("(token limit reached: %d of %d shown)\n", result.EntriesIncluded, result.EntryCount))
	}

	return sb.String()
}

// FormatEntryDetail formats a single entry for detailed display
func FormatEntryDetail(e *Entry, format OutputFormat) (string, error) {
	if format == FormatText {
		return formatEntryText(e), nil
	}
	return formatJSON(e)
}

// FormatProfile formats the guidance for one component type
func FormatProfile(p Profile, entries []Entry, format OutputFormat) (string, error) {
	if format != FormatText {
		return formatJSON(struct {
			Profile
			Threats []Entry `json:"threats"`
		}{p, entries})
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %d threat template(s)\n", p.ComponentType, len(entries)))
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	writeList(&sb, "SECURITY CONSIDERATIONS", p.SecurityConsiderations)
	writeList(&sb, "BEST PRACTICES", p.BestPractices)

	if len(p.ComplianceRequirements) > 0 {
		sb.WriteString("COMPLIANCE\n")
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		frameworks := make([]string, 0, len(p.ComplianceRequirements))
		for f := range p.ComplianceRequirements {
			frameworks = append(frameworks, f)
		}
		sort.Strings(frameworks)
		for _, f := range frameworks {
			sb.WriteString(fmt.Sprintf("%s: %s\n", f, strings.Join(p.ComplianceRequirements[f], "; ")))
		}
		sb.WriteString("\n")
	}

	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("[%s] %s (%s, %s)\n", e.TemplateID, e.Name, e.Category, e.Severity))
	}

	return sb.String(), nil
}

func formatEntryText(e *Entry) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s\n", e.TemplateID, e.Name))
	sb.WriteString(fmt.Sprintf("Component: %s | Category: %s | Severity: %s\n",
		e.ComponentType, e.Category, e.Severity))
	sb.WriteString(fmt.Sprintf("Impact: C=%d I=%d A=%d\n",
		e.Impact.Confidentiality, e.Impact.Integrity, e.Impact.Availability))
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	sb.WriteString("DESCRIPTION\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	sb.WriteString(strings.TrimSpace(e.Description) + "\n\n")

	writeList(&sb, "ATTACK VECTORS", e.AttackVectors)
	writeList(&sb, "PREREQUISITES", e.Prerequisites)
	writeList(&sb, "MITIGATIONS", e.Mitigations)
	writeList(&sb, "DETECTION", e.DetectionMethods)

	if len(e.CVEs) > 0 {
		sb.WriteString("CVES\n")
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		for _, c := range e.CVEs {
			sb.WriteString(fmt.Sprintf("• %s (%s): %s\n", c.ID, c.Severity, c.Description))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("• %s\n", item))
	}
	sb.WriteString("\n")
}
