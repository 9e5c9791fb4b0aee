package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mark-chris/threatc/internal/knowledge"
)

func shippedKnowledge(t *testing.T) *knowledge.Index {
	t.Helper()
	dir := os.Getenv("THREATC_KNOWLEDGE_DIR")
	if dir == "" {
		dir = filepath.Join("..", "..", "knowledge")
	}
	idx, _, err := knowledge.Open(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("skipping integration test: %v", err)
	}
	return idx
}

func TestIntegration_FullSession(t *testing.T) {
	srv := NewServer(shippedKnowledge(t), WithLogger(zaptest.NewLogger(t)))

	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","capabilities":{}}}
{"jsonrpc":"2.0","method":"notifications/initialized"}
{"jsonrpc":"2.0","id":2,"method":"tools/list"}
{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"knowledge_lookup","arguments":{"context":"login credential attempts"}}}
{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"threat_model_compile","arguments":{"description":"` + loginDescription + `","format":"text"}}}
`

	var output bytes.Buffer
	if err := srv.ServeStdio(context.Background(), strings.NewReader(input), &output); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 responses, got %d:\n%s", len(lines), output.String())
	}

	responses := make([]JSONRPCResponse, len(lines))
	for i, line := range lines {
		if err := json.Unmarshal([]byte(line), &responses[i]); err != nil {
			t.Fatalf("failed to parse response %d: %v", i, err)
		}
		if id, ok := responses[i].ID.(float64); !ok || int(id) != i+1 {
			t.Errorf("response %d has id %v", i, responses[i].ID)
		}
	}

	lookup := responses[2].Result.(map[string]interface{})
	if lookup["isError"] != false {
		t.Fatalf("lookup failed: %v", lookup)
	}
	text := lookup["content"].([]interface{})[0].(map[string]interface{})["text"].(string)
	var result knowledge.QueryResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("lookup result is not a query result: %v", err)
	}
	if len(result.Entries) == 0 || result.Entries[0].TemplateID != "AUTH-001" {
		t.Errorf("top entry = %+v, want AUTH-001", result.Entries)
	}

	compiled := responses[3].Result.(map[string]interface{})
	if compiled["isError"] != false {
		t.Errorf("compile failed: %v", compiled)
	}
}

func TestIntegration_ErrorRecovery(t *testing.T) {
	srv := initialized(t)

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"unknown_tool","arguments":{}}}
not json at all
{"jsonrpc":"2.0","id":2,"method":"tools/list"}
`

	var output bytes.Buffer
	if err := srv.ServeStdio(context.Background(), strings.NewReader(input), &output); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(lines))
	}

	wantCodes := []int{ErrCodeInvalidParams, ErrCodeParseError}
	for i, want := range wantCodes {
		var errResp JSONRPCErrorResponse
		if err := json.Unmarshal([]byte(lines[i]), &errResp); err != nil {
			t.Fatalf("failed to parse error response: %v", err)
		}
		if errResp.Error.Code != want {
			t.Errorf("response %d code = %d, want %d", i, errResp.Error.Code, want)
		}
	}

	var listResp JSONRPCResponse
	if err := json.Unmarshal([]byte(lines[2]), &listResp); err != nil {
		t.Fatalf("failed to parse list response: %v", err)
	}
	if id, ok := listResp.ID.(float64); !ok || id != 2 {
		t.Errorf("expected id 2, got %v", listResp.ID)
	}
}
