package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark-chris/threatc/internal/knowledge"
)

func TestHandleMessage_Initialize(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())

	resp := call(t, srv, "initialize", 1, map[string]interface{}{"protocolVersion": "2025-11-25", "capabilities": map[string]interface{}{}})

	// JSON unmarshals numbers as float64
	if id, ok := resp["id"].(float64); !ok || id != 1 {
		t.Errorf("expected id 1, got %v", resp["id"])
	}
	if _, ok := resp["result"]; !ok {
		t.Errorf("expected a result, got %v", resp)
	}
}

func TestHandleMessage_Errors(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		state    serverState
		params   interface{}
		wantCode int
	}{
		{"unknown method", "unknown/method", stateInitialized, nil, ErrCodeMethodNotFound},
		{"tools/list before initialize", "tools/list", stateNotInitialized, nil, ErrCodeInvalidRequest},
		{"tools/call before initialized notification", "tools/call", stateInitializing, map[string]interface{}{"name": "knowledge_lookup"}, ErrCodeInvalidRequest},
		{"initialize twice", "initialize", stateInitialized, map[string]interface{}{}, ErrCodeInvalidRequest},
		{"unknown tool", "tools/call", stateInitialized, map[string]interface{}{"name": "threat_model_delete"}, ErrCodeInvalidParams},
		{"tools/call params not an object", "tools/call", stateInitialized, []string{"x"}, ErrCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(knowledge.NewIndex())
			srv.setState(tt.state)

			resp := call(t, srv, tt.method, "req-1", tt.params)
			errObj, ok := resp["error"].(map[string]interface{})
			if !ok {
				t.Fatalf("expected an error response, got %v", resp)
			}
			if code := int(errObj["code"].(float64)); code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if resp["id"] != "req-1" {
				t.Errorf("id = %v, want req-1", resp["id"])
			}
		})
	}
}

func TestHandleMessage_ParseError(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())

	respData, err := srv.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var resp JSONRPCErrorResponse
	if err := json.Unmarshal(respData, &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Error.Code != ErrCodeParseError {
		t.Errorf("code = %d, want %d", resp.Error.Code, ErrCodeParseError)
	}
	if resp.ID != nil {
		t.Errorf("id = %v, want null", resp.ID)
	}
}

func TestHandleMessage_Ping(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())

	resp := call(t, srv, "ping", 7, nil)
	if _, ok := resp["result"].(map[string]interface{}); !ok {
		t.Errorf("ping response = %v", resp)
	}
}

func TestHandleMessage_InitializedNotification(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())
	srv.setState(stateInitializing)

	notifData, _ := json.Marshal(JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})

	respData, err := srv.handleMessage(context.Background(), notifData)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(respData) != 0 {
		t.Error("expected no response for notification")
	}
	if srv.getState() != stateInitialized {
		t.Errorf("expected state Initialized, got %v", srv.getState())
	}
}

func TestHandleMessage_EarlyInitializedNotification(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())

	notifData, _ := json.Marshal(JSONRPCNotification{JSONRPC: "2.0", Method: "notifications/initialized"})
	if _, err := srv.handleMessage(context.Background(), notifData); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if srv.getState() != stateNotInitialized {
		t.Errorf("notification before initialize changed state to %v", srv.getState())
	}
}
