package messaging

// Subject constants for the Dossier message bus.
// Follow the pattern: {domain}.{resource}.{action}
const (
	// SubjectDocumentChanges carries canonical document change payloads from
	// the webhook boundary to the ingestion workers.
	SubjectDocumentChanges = "dossier.documents.changes"

	// SubjectDocumentReplays carries operator-initiated replays of failed or
	// dead-lettered messages. Workers treat them identically to fresh changes.
	SubjectDocumentReplays = "dossier.documents.replays"
)

// Queue group names for load-balanced consumers.
// Workers in the same queue group share messages (each message processed once).
const (
	QueueIngestionWorkers = "ingestion-workers"
)
