package compiler

import (
	"fmt"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// gapQuestions asks about the application metadata the model had to go
// without, plus one question per high-sensitivity flow that crosses a trust
// boundary.
func gapQuestions(m *threatmodel.ThreatModel) []string {
	var out []string
	app := m.Application

	if app.Type == "" {
		out = append(out, "What kind of application is this (web, mobile, API, desktop)?")
	}
	if len(app.Authentication) == 0 {
		out = append(out, "How do users and services authenticate to the application?")
	}
	if app.DataSensitivity == "" {
		out = append(out, "What is the most sensitive data the application stores or processes?")
	}
	if !app.InternetFacing {
		out = append(out, "Is any part of the application reachable from the internet?")
	}

	for _, f := range m.Architecture.CrossingFlows() {
		if f.Sensitive() {
			out = append(out, fmt.Sprintf("How is data protected in transit from %s to %s?", endpointName(m, f.Source), endpointName(m, f.Destination)))
		}
	}
	return out
}

func endpointName(m *threatmodel.ThreatModel, id string) string {
	if c, ok := m.Component(id); ok {
		return c.Name
	}
	return id
}
