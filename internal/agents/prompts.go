package agents

import (
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

const systemPrompt = "You are an application security architect producing threat-model data. " +
	"Answer with a single JSON value that follows the requested schema. Do not add commentary."

const strideSchema = `{
  "threats": [
    {
      "category": "<one of: Spoofing, Tampering, Repudiation, Information Disclosure, Denial of Service, Elevation of Privilege>",
      "title": "<short threat name>",
      "description": "<attack scenario and impact>",
      "affected_components": ["<component id>"],
      "severity": "<critical|high|medium|low>",
      "attack_vectors": ["<vector>"],
      "mitigations": ["<mitigation>"]
    }
  ],
  "improvement_suggestions": ["<suggestion>"],
  "open_questions": ["<question>"]
}`

const dreadSchema = `{
  "scores": [
    {
      "threat_id": "<threat id>",
      "damage": <1-10>,
      "reproducibility": <1-10>,
      "exploitability": <1-10>,
      "affected_users": <1-10>,
      "discoverability": <1-10>
    }
  ]
}`

const attackTreeSchema = `{
  "nodes": [
    {
      "id": "<unique node id>",
      "parent_id": "<id of parent node, null for the root>",
      "description": "<goal or attacker action>",
      "node_type": "<goal|and|or|leaf>",
      "threat_id": "<related threat id or null>"
    }
  ]
}`

const testCaseSchema = `{
  "test_cases": [
    {
      "threat_id": "<threat id>",
      "scenario": "Given <precondition>\nWhen <action>\nThen <outcome>",
      "expected_result": "<what a secure system does>"
    }
  ]
}`

const componentSchema = `{
  "components": [
    {
      "name": "<component name>",
      "type": "<frontend|backend|database|api_gateway|auth_service|storage|cache|load_balancer|cdn|message_queue|other>",
      "technologies": ["<technology>"]
    }
  ]
}`

const contextSchema = `{
  "application_overview": {"type": "", "purpose": "", "primary_users": ""},
  "technical_architecture": {"components": [], "integrations": [], "data_flows": []},
  "security_details": {"authentication": [], "authorization": [], "data_protection": []},
  "data_handling": {"storage": [], "processing": [], "sensitivity": ""},
  "deployment": {"environment": "", "infrastructure": []},
  "additional_context": [],
  "open_questions": []
}`

const architectureSchema = `{
  "data_flows": [
    {
      "source": "<component id or external entity>",
      "destination": "<component id or external entity>",
      "data_type": "<data carried>",
      "direction": "<unidirectional|bidirectional>",
      "protocol": "<protocol>",
      "sensitivity": "<high|medium|low>"
    }
  ],
  "trust_zones": [
    {
      "name": "<zone name>",
      "type": "<public|dmz|private|restricted>",
      "components": ["<component id>"],
      "security_level": "<low|medium|high|critical>"
    }
  ],
  "trust_boundaries": [
    {
      "id": "<boundary id>",
      "type": "<network|process|physical>",
      "location": "<where the boundary sits>",
      "connected_zones": ["<zone name>"],
      "security_controls": ["<control>"]
    }
  ]
}`

const questionSchema = `{
  "questions": ["<question>"]
}`

const answerSchema = `{
  "security_components": ["<component or control>"],
  "threat_vectors": ["<attack vector>"],
  "sensitive_assets": ["<asset>"],
  "dependencies": ["<external dependency>"],
  "constraints": ["<security constraint>"]
}`

func writeApplication(sb *strings.Builder, app threatmodel.Application) {
	sb.WriteString("Application:\n")
	fmt.Fprintf(sb, "- Name: %s\n", app.Name)
	if app.Type != "" {
		fmt.Fprintf(sb, "- Type: %s\n", app.Type)
	}
	if len(app.Authentication) > 0 {
		fmt.Fprintf(sb, "- Authentication: %s\n", strings.Join(app.Authentication, ", "))
	}
	if app.DataSensitivity != "" {
		fmt.Fprintf(sb, "- Data sensitivity: %s\n", app.DataSensitivity)
	}
	fmt.Fprintf(sb, "- Internet facing: %t\n", app.InternetFacing)
	if app.Description != "" {
		fmt.Fprintf(sb, "- Description: %s\n", app.Description)
	}
}

func writeComponents(sb *strings.Builder, comps []threatmodel.Component) {
	sb.WriteString("\nComponents:\n")
	for _, c := range comps {
		fmt.Fprintf(sb, "- id=%s name=%q type=%s", c.ID, c.Name, c.Type)
		if len(c.Technologies) > 0 {
			fmt.Fprintf(sb, " technologies=%s", strings.Join(c.Technologies, ","))
		}
		sb.WriteString("\n")
	}
}

func writeThreats(sb *strings.Builder, threats []threatmodel.Threat) {
	sb.WriteString("\nThreats:\n")
	for _, t := range threats {
		fmt.Fprintf(sb, "- %s [%s] %s (components: %s)\n", t.ID, t.Category, t.Title,
			strings.Join(t.AffectedComponents, ", "))
		if t.Description != "" {
			fmt.Fprintf(sb, "  %s\n", t.Description)
		}
	}
}

func writeArchitecture(sb *strings.Builder, arch threatmodel.Architecture) {
	if len(arch.DataFlows) > 0 {
		sb.WriteString("\nData flows:\n")
		for _, f := range arch.DataFlows {
			arrow := "->"
			if f.Bidirectional {
				arrow = "<->"
			}
			fmt.Fprintf(sb, "- %s %s %s", f.Source, arrow, f.Destination)
			if f.DataType != "" {
				fmt.Fprintf(sb, " carrying %s", f.DataType)
			}
			if f.Sensitivity != "" {
				fmt.Fprintf(sb, " (%s sensitivity)", f.Sensitivity)
			}
			sb.WriteString("\n")
		}
	}
	if len(arch.TrustZones) > 0 {
		sb.WriteString("\nTrust zones:\n")
		for _, z := range arch.TrustZones {
			fmt.Fprintf(sb, "- %s (%s): %s\n", z.Name, z.Type, strings.Join(z.Components, ", "))
		}
	}
	for _, b := range arch.TrustBoundaries {
		fmt.Fprintf(sb, "- boundary %s between %s\n", b.ID, strings.Join(b.ConnectedZones, " and "))
	}
}

func writeNotes(sb *strings.Builder, notes []string) {
	if len(notes) == 0 {
		return
	}
	sb.WriteString("\nOwner-supplied context:\n")
	for _, n := range notes {
		fmt.Fprintf(sb, "- %s\n", n)
	}
}

func (r *Runner) stridePrompt(ac Context) string {
	var ctx strings.Builder
	writeApplication(&ctx, ac.Application)
	writeComponents(&ctx, ac.Components)
	writeArchitecture(&ctx, ac.Architecture)
	writeNotes(&ctx, ac.Notes)

	if len(ac.Technologies) > 0 {
		ctx.WriteString("\nTechnologies:\n")
		for _, t := range ac.Technologies {
			fmt.Fprintf(&ctx, "- %s (%s)", t.Name, t.Category)
			if len(t.Implications) > 0 {
				fmt.Fprintf(&ctx, ": %s", strings.Join(t.Implications, "; "))
			}
			ctx.WriteString("\n")
		}
	}

	if len(ac.Knowledge) > 0 {
		ctx.WriteString("\nKnown threat patterns for these component types:\n")
		for _, e := range ac.Knowledge {
			fmt.Fprintf(&ctx, "- [%s] %s: %s (%s)\n", e.ComponentType, e.Category, e.Name, e.Severity)
		}
	}

	var sb strings.Builder
	sb.WriteString(Marker(StrideEnumeration))
	sb.WriteString("Enumerate STRIDE threats for the system below. Cover every category that applies, " +
		"reference components by id, and propose concrete mitigations for each threat. " +
		"Known patterns are listed so you can extend them; do not simply repeat them.\n\n")
	sb.WriteString(r.budget(ctx.String()))
	sb.WriteString("\nRespond with JSON in this format:\n")
	sb.WriteString(strideSchema)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Runner) dreadPrompt(ac Context, threats []threatmodel.Threat, single bool) string {
	var ctx strings.Builder
	writeApplication(&ctx, ac.Application)
	writeComponents(&ctx, ac.Components)
	writeThreats(&ctx, threats)

	var sb strings.Builder
	if single {
		sb.WriteString(Marker(DreadSingle))
		sb.WriteString("Score the single threat below with DREAD. ")
	} else {
		sb.WriteString(Marker(DreadScoring))
		sb.WriteString("Score every threat below with DREAD. Return one entry per threat id. ")
	}
	sb.WriteString("Each field is an integer from 1 (lowest) to 10 (highest).\n\n")
	sb.WriteString(r.budget(ctx.String()))
	sb.WriteString("\nRespond with JSON in this format:\n")
	sb.WriteString(dreadSchema)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Runner) attackTreePrompt(ac Context, strict bool) string {
	var ctx strings.Builder
	writeApplication(&ctx, ac.Application)
	writeComponents(&ctx, ac.Components)
	writeThreats(&ctx, ac.Threats)

	var sb strings.Builder
	if strict {
		sb.WriteString(Marker(StrictAttackTree))
	} else {
		sb.WriteString(Marker(AttackTree))
	}
	fmt.Fprintf(&sb, "Build an attack tree whose root goal is compromising %s. "+
		"Decompose the goal into sub-goals and attacker actions, and link leaves to the threat ids below.\n", ac.Application.Name)
	if strict {
		sb.WriteString("Rules, all mandatory:\n" +
			"1. Exactly one node has parent_id null; it is the root with node_type \"goal\".\n" +
			"2. Every other node's parent_id is the id of another node in the list.\n" +
			"3. Node ids are unique and no node is its own ancestor.\n" +
			"4. threat_id is null or one of the listed threat ids.\n")
	}
	sb.WriteString("\n")
	sb.WriteString(r.budget(ctx.String()))
	sb.WriteString("\nRespond with JSON in this format:\n")
	sb.WriteString(attackTreeSchema)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Runner) testCasePrompt(ac Context) string {
	var ctx strings.Builder
	writeApplication(&ctx, ac.Application)
	writeComponents(&ctx, ac.Components)
	writeThreats(&ctx, ac.Threats)

	var sb strings.Builder
	sb.WriteString(Marker(TestCaseGeneration))
	sb.WriteString("Write Gherkin security test cases for the threats below. " +
		"Use Given/When/Then steps, at least one test per threat, and only the listed threat ids.\n\n")
	sb.WriteString(r.budget(ctx.String()))
	sb.WriteString("\nRespond with JSON in this format:\n")
	sb.WriteString(testCaseSchema)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Runner) componentPrompt(description, supplementary string) string {
	var ctx strings.Builder
	ctx.WriteString("Description:\n")
	ctx.WriteString(description)
	ctx.WriteString("\n")
	if supplementary != "" {
		ctx.WriteString("\nAdditional material (diagram or transcript):\n")
		ctx.WriteString(supplementary)
		ctx.WriteString("\n")
	}

	var sb strings.Builder
	sb.WriteString(Marker(ComponentExtraction))
	sb.WriteString("List the architecture components of the system described below. " +
		"Only include components the text states or clearly implies.\n\n")
	sb.WriteString(r.budget(ctx.String()))
	sb.WriteString("\nRespond with JSON in this format:\n")
	sb.WriteString(componentSchema)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Runner) contextPrompt(transcript string) string {
	var sb strings.Builder
	sb.WriteString(Marker(ContextExtraction))
	sb.WriteString("Extract the security-relevant application context from this meeting transcript. " +
		"Leave fields empty when the transcript does not say. " +
		"List anything still unclear under open_questions.\n\nTranscript:\n")
	sb.WriteString(r.budget(transcript))
	sb.WriteString("\n\nRespond with JSON in this format:\n")
	sb.WriteString(contextSchema)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Runner) architecturePrompt(ac Context) string {
	var ctx strings.Builder
	writeApplication(&ctx, ac.Application)
	writeComponents(&ctx, ac.Components)
	writeNotes(&ctx, ac.Notes)

	var sb strings.Builder
	sb.WriteString(Marker(ArchitectureAnalysis))
	sb.WriteString("Describe how data moves through the system below. List each data flow between components " +
		"or external entities, group components into trust zones, and name the trust boundaries between zones " +
		"with the controls that guard them. Reference components by id.\n\n")
	sb.WriteString(r.budget(ctx.String()))
	sb.WriteString("\nRespond with JSON in this format:\n")
	sb.WriteString(architectureSchema)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Runner) questionPrompt(ac Context) string {
	var ctx strings.Builder
	writeApplication(&ctx, ac.Application)
	writeComponents(&ctx, ac.Components)
	writeArchitecture(&ctx, ac.Architecture)
	if len(ac.Threats) > 0 {
		writeThreats(&ctx, ac.Threats)
	}

	var sb strings.Builder
	sb.WriteString(Marker(QuestionGeneration))
	sb.WriteString("Write 5 to 7 questions for the owners of the system below. Ask about what a security " +
		"reviewer still needs to know: authentication and authorization details, data handling, " +
		"integrations and deployment. Do not ask what the context already answers.\n\n")
	sb.WriteString(r.budget(ctx.String()))
	sb.WriteString("\nRespond with JSON in this format:\n")
	sb.WriteString(questionSchema)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Runner) answerPrompt(answers []threatmodel.Answer) string {
	var ctx strings.Builder
	for _, a := range answers {
		fmt.Fprintf(&ctx, "Q: %s\nA: %s\n\n", strings.TrimSpace(a.Question), strings.TrimSpace(a.Answer))
	}

	var sb strings.Builder
	sb.WriteString(Marker(AnswerExtraction))
	sb.WriteString("Analyze these answers from the application owners and extract the security-relevant facts. " +
		"Leave a list empty when the answers say nothing about it.\n\n")
	sb.WriteString(r.budget(ctx.String()))
	sb.WriteString("\nRespond with JSON in this format:\n")
	sb.WriteString(answerSchema)
	sb.WriteString("\n")
	return sb.String()
}
