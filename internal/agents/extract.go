package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// ComponentProposal is a component named by the model. The detector assigns
// ids and merges proposals with its own findings.
type ComponentProposal struct {
	Name         string
	Type         threatmodel.ComponentType
	Technologies []string
}

// ExtractComponents asks the model which components a description mentions.
// Types are normalized against the component vocabulary; unknown ones become
// custom.
func (r *Runner) ExtractComponents(ctx context.Context, description, supplementary string) ([]ComponentProposal, error) {
	var out []ComponentProposal

	err := r.run(ctx, ComponentExtraction, r.componentPrompt(description, supplementary), func(v any) error {
		out = nil
		if !hasList(v, "components") {
			return errors.New("response has no components list")
		}
		for _, item := range items(v, []string{"components"}) {
			name := getString(item, "name", "component_name", "component")
			rawType := getString(item, "type", "component_type")
			if name == "" && rawType == "" {
				continue
			}
			t := threatmodel.NormalizeComponentType(rawType)
			if t == threatmodel.TypeCustom {
				t = threatmodel.NormalizeComponentType(name)
			}
			if name == "" {
				name = rawType
			}
			out = append(out, ComponentProposal{
				Name:         name,
				Type:         t,
				Technologies: lowerAll(getStrings(item, "technologies", "technology", "tech_stack")),
			})
		}
		return nil
	})

	return out, err
}

// ExtractedContext is the application context recovered from a transcript
type ExtractedContext struct {
	ApplicationType string   `json:"application_type,omitempty"`
	Purpose         string   `json:"purpose,omitempty"`
	PrimaryUsers    string   `json:"primary_users,omitempty"`
	Components      []string `json:"components,omitempty"`
	Integrations    []string `json:"integrations,omitempty"`
	DataFlows       []string `json:"data_flows,omitempty"`
	Authentication  []string `json:"authentication,omitempty"`
	Authorization   []string `json:"authorization,omitempty"`
	DataProtection  []string `json:"data_protection,omitempty"`
	Storage         []string `json:"storage,omitempty"`
	Processing      []string `json:"processing,omitempty"`
	Sensitivity     string   `json:"sensitivity,omitempty"`
	Environment     string   `json:"environment,omitempty"`
	Infrastructure  []string `json:"infrastructure,omitempty"`
	Additional      []string `json:"additional_context,omitempty"`
	OpenQuestions   []string `json:"open_questions,omitempty"`
}

// ExtractContext pulls application context out of a meeting transcript
func (r *Runner) ExtractContext(ctx context.Context, transcript string) (ExtractedContext, error) {
	var ec ExtractedContext
	if strings.TrimSpace(transcript) == "" {
		return ec, &threatmodel.InputError{Field: "transcript", Message: "must not be empty"}
	}

	err := r.run(ctx, ContextExtraction, r.contextPrompt(transcript), func(v any) error {
		root, ok := v.(object)
		if !ok {
			return fmt.Errorf("expected an object, got %T", v)
		}

		overview := getObject(root, "application_overview")
		arch := getObject(root, "technical_architecture")
		sec := getObject(root, "security_details")
		data := getObject(root, "data_handling")
		deploy := getObject(root, "deployment")
		if overview == nil && arch == nil && sec == nil && data == nil && deploy == nil {
			return errors.New("response has none of the expected sections")
		}

		ec = ExtractedContext{
			ApplicationType: getString(overview, "type"),
			Purpose:         getString(overview, "purpose"),
			PrimaryUsers:    getString(overview, "primary_users"),
			Components:      getStrings(arch, "components"),
			Integrations:    getStrings(arch, "integrations"),
			DataFlows:       getStrings(arch, "data_flows"),
			Authentication:  getStrings(sec, "authentication"),
			Authorization:   getStrings(sec, "authorization"),
			DataProtection:  getStrings(sec, "data_protection"),
			Storage:         getStrings(data, "storage"),
			Processing:      getStrings(data, "processing"),
			Sensitivity:     getString(data, "sensitivity"),
			Environment:     getString(deploy, "environment"),
			Infrastructure:  getStrings(deploy, "infrastructure"),
			Additional:      getStrings(root, "additional_context"),
			OpenQuestions:   getStrings(root, "open_questions"),
		}
		return nil
	})

	return ec, err
}

// Apply fills blank application fields from the extracted context
func (ec ExtractedContext) Apply(app *threatmodel.Application) {
	if app.Type == "" {
		app.Type = ec.ApplicationType
	}
	if len(app.Authentication) == 0 {
		app.Authentication = append([]string(nil), ec.Authentication...)
	}
	if app.DataSensitivity == "" {
		app.DataSensitivity = ec.Sensitivity
	}
	if app.Description == "" {
		app.Description = ec.Purpose
	}
}

// Summary renders the context as plain text for component detection
func (ec ExtractedContext) Summary() string {
	var sb strings.Builder
	line := func(label string, values ...string) {
		var kept []string
		for _, v := range values {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			fmt.Fprintf(&sb, "%s: %s\n", label, strings.Join(kept, ", "))
		}
	}

	line("Application", ec.ApplicationType, ec.Purpose)
	line("Users", ec.PrimaryUsers)
	line("Components", ec.Components...)
	line("Integrations", ec.Integrations...)
	line("Data flows", ec.DataFlows...)
	line("Authentication", ec.Authentication...)
	line("Authorization", ec.Authorization...)
	line("Data protection", ec.DataProtection...)
	line("Storage", ec.Storage...)
	line("Deployment", append([]string{ec.Environment}, ec.Infrastructure...)...)
	return sb.String()
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
