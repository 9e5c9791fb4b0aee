package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// tool is one callable MCP tool
type tool struct {
	name        string
	description string
	properties  map[string]interface{}
	required    []string
	call        func(ctx context.Context, s *Server, args map[string]interface{}) (string, error)
}

var formatProperty = map[string]interface{}{
	"type":        "string",
	"enum":        []string{"json", "text", "markdown", "mermaid", "dfd"},
	"default":     "markdown",
	"description": "Report format for the returned model",
}

var tools = map[string]tool{
	"threat_model_compile": {
		name:        "threat_model_compile",
		description: "Compile a threat model from a free-text system description: detected components, STRIDE threats, DREAD scores, an attack tree, security test cases and mitigations.",
		properties: map[string]interface{}{
			"description": map[string]interface{}{
				"type":        "string",
				"minLength":   1,
				"description": "What the system is and how it is built (e.g. 'web app with login form, MySQL backend, exposed to internet')",
			},
			"supplementary": map[string]interface{}{
				"type":        "string",
				"description": "Extra architecture notes",
			},
			"transcript": map[string]interface{}{
				"type":        "string",
				"description": "Meeting transcript to mine for application context",
			},
			"answers": map[string]interface{}{
				"type":        "array",
				"description": "Answers to the open questions of an earlier model",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"question": map[string]interface{}{"type": "string"},
						"answer":   map[string]interface{}{"type": "string"},
					},
					"required": []string{"question", "answer"},
				},
			},
			"application_name": map[string]interface{}{
				"type":        "string",
				"description": "Name shown in the report",
			},
			"prior_id": map[string]interface{}{
				"type":        "string",
				"description": "Id of an earlier model whose threat ids should be kept",
			},
			"format": formatProperty,
		},
		required: []string{"description"},
		call:     compileModel,
	},
	"threat_model_get": {
		name:        "threat_model_get",
		description: "Fetch a previously compiled threat model.",
		properties: map[string]interface{}{
			"id":     map[string]interface{}{"type": "string", "minLength": 1},
			"format": formatProperty,
		},
		required: []string{"id"},
		call:     getModel,
	},
	"threat_model_regenerate": {
		name:        "threat_model_regenerate",
		description: "Rebuild one section of a compiled threat model, keeping the rest.",
		properties: map[string]interface{}{
			"id": map[string]interface{}{"type": "string", "minLength": 1},
			"section": map[string]interface{}{
				"type": "string",
				"enum": []string{"dread", "attack_tree", "test_cases", "mitigations", "architecture", "questions"},
			},
			"format": formatProperty,
		},
		required: []string{"id", "section"},
		call:     regenerateModel,
	},
	"knowledge_lookup": {
		name:        "knowledge_lookup",
		description: "Query the threat template knowledge base by free-text context, component type or STRIDE category. Returns concise, actionable security context optimized for code generation.",
		properties: map[string]interface{}{
			"context": map[string]interface{}{
				"type":        "string",
				"description": "What you're implementing (e.g. 'login form', 'multi-tenant API endpoint')",
			},
			"component_type": map[string]interface{}{
				"type":        "string",
				"description": "Component type such as database, cache or auth_service",
			},
			"category": map[string]interface{}{
				"type":        "string",
				"description": "STRIDE category",
			},
			"limit": map[string]interface{}{
				"type":    "integer",
				"minimum": 1,
			},
			"verbosity": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"agent", "human"},
				"default":     "agent",
				"description": "Output format: 'agent' for concise, 'human' for detailed",
			},
		},
		call: lookupKnowledge,
	},
}

func (t tool) definition() map[string]interface{} {
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           t.properties,
		"additionalProperties": false,
	}
	if len(t.required) > 0 {
		schema["required"] = t.required
	}
	return map[string]interface{}{
		"name":        t.name,
		"description": t.description,
		"inputSchema": schema,
	}
}

func (t tool) allowed() []string {
	keys := make([]string, 0, len(t.properties))
	for k := range t.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func handleToolsList(s *Server, _ json.RawMessage) (interface{}, error) {
	if s.getState() != stateInitialized {
		return nil, errNotInitialized
	}

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]interface{}, 0, len(names))
	for _, name := range names {
		list = append(list, tools[name].definition())
	}
	return map[string]interface{}{"tools": list}, nil
}

// handleToolsCall runs a tool. An unknown tool is a protocol error; bad
// arguments and failures while running are reported in the tool result so
// the calling agent can read them.
func handleToolsCall(ctx context.Context, s *Server, params json.RawMessage) (interface{}, error) {
	if s.getState() != stateInitialized {
		return nil, errNotInitialized
	}

	var p toolsCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(fmt.Errorf("invalid tools/call params: %w", err))
	}

	t, err := validateToolName(p.Name)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := validateNoUnknownParams(p.Arguments, t.allowed()); err != nil {
		return createToolExecutionErrorResult(err.Error()), nil
	}
	for _, key := range t.required {
		if v, _ := p.Arguments[key].(string); v == "" {
			return createToolExecutionErrorResult(fmt.Sprintf("%s must be non-empty", key)), nil
		}
	}

	text, err := t.call(ctx, s, p.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed", zap.String("tool", t.name), zap.Error(err))
		return createToolExecutionErrorResult(err.Error()), nil
	}

	return map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{
				"type": "text",
				"text": text,
			},
		},
		"isError": false,
	}, nil
}

func createToolExecutionErrorResult(message string) interface{} {
	return map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{
				"type": "text",
				"text": message,
			},
		},
		"isError": true,
	}
}
