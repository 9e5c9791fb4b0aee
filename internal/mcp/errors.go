package mcp

import "errors"

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Error message constants
const (
	ErrMsgParseError     = "Parse error"
	ErrMsgInvalidRequest = "Invalid Request"
	ErrMsgMethodNotFound = "Method not found"
	ErrMsgInvalidParams  = "Invalid params"
	ErrMsgInternalError  = "Internal error"
)

var errNotInitialized = errors.New("server not initialized")

// protocolError is reported as a JSON-RPC error object rather than a tool result
type protocolError struct {
	code    int
	message string
	err     error
}

func (e *protocolError) Error() string { return e.err.Error() }

func (e *protocolError) Unwrap() error { return e.err }

func invalidParams(err error) error {
	return &protocolError{code: ErrCodeInvalidParams, message: ErrMsgInvalidParams, err: err}
}

func invalidRequest(err error) error {
	return &protocolError{code: ErrCodeInvalidRequest, message: ErrMsgInvalidRequest, err: err}
}

// errorCode maps a handler error to its JSON-RPC code and message
func errorCode(err error) (int, string) {
	var pe *protocolError
	if errors.As(err, &pe) {
		return pe.code, pe.message
	}
	if errors.Is(err, errNotInitialized) {
		return ErrCodeInvalidRequest, ErrMsgInvalidRequest
	}
	return ErrCodeInternalError, ErrMsgInternalError
}
