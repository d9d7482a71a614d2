package logging

// Standard structured logging keys.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldJobID     = "job_id"
	FieldJobType   = "job_type"
	FieldOwner     = "owner"
	FieldToken     = "token"
	FieldCount     = "count"
	FieldPhase     = "phase"
	FieldSessionID = "session_id"
)
