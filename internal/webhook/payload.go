package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dossier-systems/dossier-ingest/internal/models"
)

// ValidationError describes a malformed or incomplete webhook payload.
// Validation failures are permanent: they surface as 400 at the boundary and
// are never enqueued or retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid webhook payload: %s", e.Reason)
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// inboundEvent mirrors the wire shape of a change notification. The document
// identifier historically appeared as either "name" or "docname"; both are
// accepted.
type inboundEvent struct {
	Doctype string          `json:"doctype"`
	Name    string          `json:"name"`
	Docname string          `json:"docname"`
	Action  string          `json:"action"`
	Data    json.RawMessage `json:"data"`
}

// Normalize parses and validates a raw webhook body into a CanonicalPayload.
// It returns a *ValidationError when a required field is missing or
// malformed. A data field that is not a JSON object is dropped with a
// warning rather than rejected.
func Normalize(raw []byte, logger *slog.Logger) (*models.CanonicalPayload, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var evt inboundEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, validationErrorf("body is not valid JSON: %v", err)
	}

	sourceType := strings.TrimSpace(evt.Doctype)
	if sourceType == "" {
		return nil, validationErrorf("missing required field 'doctype'")
	}

	sourceID := strings.TrimSpace(evt.Name)
	if sourceID == "" {
		sourceID = strings.TrimSpace(evt.Docname)
	}
	if sourceID == "" {
		return nil, validationErrorf("missing required field 'name' (or 'docname')")
	}

	action := models.Action(strings.ToLower(strings.TrimSpace(evt.Action)))
	if !action.Valid() {
		return nil, validationErrorf("action must be one of create, update, delete (got %q)", evt.Action)
	}

	payload := &models.CanonicalPayload{
		SourceType: sourceType,
		SourceID:   sourceID,
		Action:     action,
		ReceivedAt: time.Now().UTC(),
	}

	// data only travels with create/update, and only when it is an object.
	// Arrays and scalars carry nothing we can project fields from.
	if len(evt.Data) > 0 && action != models.ActionDelete {
		var data map[string]interface{}
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			logger.Warn("dropping non-object data field",
				slog.String("source_type", sourceType),
				slog.String("source_id", sourceID),
			)
		} else {
			payload.Data = data
		}
	}

	return payload, nil
}

// systemDoctypes are document types that exist for bookkeeping inside the
// source system and never carry content worth retrieving. Changes to them are
// acknowledged and discarded before enqueue.
var systemDoctypes = map[string]struct{}{
	"User":                   {},
	"Role":                   {},
	"Session":                {},
	"DocType":                {},
	"Version":                {},
	"Access Log":             {},
	"Activity Log":           {},
	"Error Log":              {},
	"Scheduled Job Log":      {},
	"Notification Log":       {},
	"Email Queue":            {},
	"DocField":               {},
	"Custom Field":           {},
	"Property Setter":        {},
	"Installed Applications": {},
}

// ShouldProcess reports whether changes to the given document type belong in
// the retrieval index. The deny-list applies after validation and before
// enqueue.
func ShouldProcess(sourceType string) bool {
	_, denied := systemDoctypes[sourceType]
	return !denied
}
