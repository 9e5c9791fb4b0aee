package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

type initializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      map[string]interface{} `json:"clientInfo,omitempty"`
}

func handleInitialize(s *Server, params json.RawMessage) (interface{}, error) {
	if s.getState() != stateNotInitialized {
		return nil, invalidRequest(errors.New("already initialized"))
	}

	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams(fmt.Errorf("invalid initialize params: %w", err))
		}
	}

	// Only one protocol version is spoken; a client asking for another
	// decides for itself whether to continue.
	s.mu.Lock()
	s.protocolVersion = protocolVersion
	s.clientCapabilities = p.Capabilities
	s.state = stateInitializing
	s.mu.Unlock()

	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{
				"listChanged": false,
			},
		},
		"serverInfo": map[string]interface{}{
			"name":        "threatc",
			"version":     s.version,
			"description": "Threat model compiler - STRIDE threats, DREAD scores, attack trees and security test cases",
		},
	}, nil
}
