package mcp

import (
	"encoding/json"
	"testing"

	"github.com/mark-chris/threatc/internal/knowledge"
)

func TestHandleInitialize_Success(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())

	params := map[string]interface{}{
		"protocolVersion": "2025-11-25",
		"capabilities":    map[string]interface{}{"roots": map[string]interface{}{}},
		"clientInfo": map[string]interface{}{
			"name":    "TestClient",
			"version": "1.0.0",
		},
	}
	paramsJSON, _ := json.Marshal(params)

	result, err := handleInitialize(srv, paramsJSON)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	resultMap := result.(map[string]interface{})
	if resultMap["protocolVersion"] != "2025-11-25" {
		t.Errorf("expected protocol version 2025-11-25, got %v", resultMap["protocolVersion"])
	}
	if srv.getState() != stateInitializing {
		t.Errorf("expected state Initializing, got %v", srv.getState())
	}
	if _, ok := srv.clientCapabilities["roots"]; !ok {
		t.Errorf("client capabilities not kept: %v", srv.clientCapabilities)
	}
}

func TestHandleInitialize_OtherVersion(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())

	result, err := handleInitialize(srv, json.RawMessage(`{"protocolVersion":"2024-11-05","capabilities":{}}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v := result.(map[string]interface{})["protocolVersion"]; v != protocolVersion {
		t.Errorf("protocolVersion = %v, want %s", v, protocolVersion)
	}
}

func TestHandleInitialize_DuplicateInit(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())
	srv.setState(stateInitialized)

	_, err := handleInitialize(srv, json.RawMessage(`{"protocolVersion":"2025-11-25","capabilities":{}}`))
	if err == nil {
		t.Fatal("expected error for duplicate initialization")
	}
	if code, _ := errorCode(err); code != ErrCodeInvalidRequest {
		t.Errorf("code = %d, want %d", code, ErrCodeInvalidRequest)
	}
}

func TestHandleInitialize_BadParams(t *testing.T) {
	srv := NewServer(knowledge.NewIndex())

	_, err := handleInitialize(srv, json.RawMessage(`["not", "an", "object"]`))
	if code, _ := errorCode(err); err == nil || code != ErrCodeInvalidParams {
		t.Errorf("error = %v (code %d), want invalid params", err, code)
	}
	if srv.getState() != stateNotInitialized {
		t.Errorf("state = %v after failed initialize", srv.getState())
	}
}
