package threatmodel

import (
	"fmt"
)

// InputError reports missing or unusable user input
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Message)
}

// DataLoadError reports a knowledge base document or entry that could not be
// loaded. The loader skips the offending item and keeps going.
type DataLoadError struct {
	Source string
	Entry  string
	Err    error
}

func (e *DataLoadError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("knowledge base %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("knowledge base %s: entry %s: %v", e.Source, e.Entry, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// AgentOutputError reports a model response that could not be parsed into the
// agent's structured type. Raw holds the last response for diagnostics.
type AgentOutputError struct {
	Agent    string
	Attempts int
	Raw      string
	Err      error
}

func (e *AgentOutputError) Error() string {
	return fmt.Sprintf("agent %s: unusable output after %d attempt(s): %v", e.Agent, e.Attempts, e.Err)
}

func (e *AgentOutputError) Unwrap() error { return e.Err }

// CompilationError is fatal: no usable threat model could be produced.
// Model holds whatever partial state existed when the failure happened.
type CompilationError struct {
	Stage StageName
	Err   error
	Model *ThreatModel
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation failed at stage %s: %v", e.Stage, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }
