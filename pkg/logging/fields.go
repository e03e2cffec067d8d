package logging

import "log/slog"

// Common field names for consistent logging across the pipeline.
const (
	FieldService    = "service"
	FieldMessageID  = "message_id"
	FieldSourceType = "source_type"
	FieldSourceID   = "source_id"
	FieldAction     = "action"
	FieldStatus     = "status"
	FieldRetries    = "retries"
	FieldIP         = "ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// MessageID returns a slog attribute for a queue message ID.
func MessageID(id string) slog.Attr {
	return slog.String(FieldMessageID, id)
}

// SourceType returns a slog attribute for the document type.
func SourceType(t string) slog.Attr {
	return slog.String(FieldSourceType, t)
}

// SourceID returns a slog attribute for the document identifier.
func SourceID(id string) slog.Attr {
	return slog.String(FieldSourceID, id)
}

// Action returns a slog attribute for the change action.
func Action(a string) slog.Attr {
	return slog.String(FieldAction, a)
}

// Status returns a slog attribute for a message lifecycle status.
func Status(s string) slog.Attr {
	return slog.String(FieldStatus, s)
}

// Retries returns a slog attribute for the delivery attempt count.
func Retries(n int) slog.Attr {
	return slog.Int(FieldRetries, n)
}

// IP returns a slog attribute for the client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
