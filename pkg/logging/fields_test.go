package logging

import (
	"errors"
	"testing"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"service", Service("ingest").Key, FieldService},
		{"message id", MessageID("m-1").Key, FieldMessageID},
		{"source type", SourceType("Project").Key, FieldSourceType},
		{"source id", SourceID("PROJ-1").Key, FieldSourceID},
		{"action", Action("update").Key, FieldAction},
		{"status", Status("pending").Key, FieldStatus},
		{"retries", Retries(2).Key, FieldRetries},
		{"error", Error(errors.New("boom")).Key, FieldError},
	}

	for _, tt := range tests {
		if tt.key != tt.expected {
			t.Errorf("%s: expected key %q, got %q", tt.name, tt.expected, tt.key)
		}
	}
}

func TestErrorField(t *testing.T) {
	attr := Error(errors.New("fetch document: timeout"))
	if attr.Value.String() != "fetch document: timeout" {
		t.Errorf("unexpected error value %q", attr.Value.String())
	}
}
