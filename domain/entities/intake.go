package entities

import "time"

// Classification values
const (
	ClassificationNew      = "new"
	ClassificationExisting = "existing"
)

// IntakeField names a field an intake record can fill
type IntakeField string

const (
	FieldClassification IntakeField = "classification"
	FieldFullName       IntakeField = "full_name"
	FieldPhone          IntakeField = "phone"
	FieldEmail          IntakeField = "email"
	FieldIncident       IntakeField = "incident"
	FieldIncidentDate   IntakeField = "incident_date"
	FieldLocation       IntakeField = "incident_location"
)

// IntakeRecord is the best-effort intake picture built from one conversation.
// A populated field is never overwritten.
type IntakeRecord struct {
	Classification string   `json:"classification,omitempty"`
	FullName       string   `json:"full_name,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Email          string   `json:"email,omitempty"`
	Incident       string   `json:"incident,omitempty"`
	IncidentDate   string   `json:"incident_date,omitempty"`
	Location       string   `json:"incident_location,omitempty"`
	Utterances     []string `json:"utterances"`
}

// Complete reports whether every field needed for a callback is present
func (r IntakeRecord) Complete() bool {
	return r.Classification != "" &&
		r.FullName != "" &&
		(r.Phone != "" || r.Email != "") &&
		r.Incident != "" &&
		r.IncidentDate != "" &&
		r.Location != ""
}

// Missing lists the fields still needed for completion
func (r IntakeRecord) Missing() []IntakeField {
	var missing []IntakeField
	if r.Classification == "" {
		missing = append(missing, FieldClassification)
	}
	if r.FullName == "" {
		missing = append(missing, FieldFullName)
	}
	if r.Phone == "" && r.Email == "" {
		missing = append(missing, FieldPhone)
	}
	if r.Incident == "" {
		missing = append(missing, FieldIncident)
	}
	if r.IncidentDate == "" {
		missing = append(missing, FieldIncidentDate)
	}
	if r.Location == "" {
		missing = append(missing, FieldLocation)
	}
	return missing
}

// IntakeSnapshot is the final intake record of a connection, emitted at teardown
type IntakeSnapshot struct {
	ConnectionID string        `json:"connection_id"`
	VoiceID      string        `json:"voice_id,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Complete     bool          `json:"complete"`
	Missing      []IntakeField `json:"missing,omitempty"`
	Record       IntakeRecord  `json:"record"`
}

// NewIntakeSnapshot captures rec for connection c
func NewIntakeSnapshot(c *Connection, rec IntakeRecord) IntakeSnapshot {
	ended := time.Now()
	if c.ClosedAt != nil {
		ended = *c.ClosedAt
	}
	return IntakeSnapshot{
		ConnectionID: c.ID,
		VoiceID:      c.VoiceID,
		StartedAt:    c.CreatedAt,
		EndedAt:      ended,
		Complete:     rec.Complete(),
		Missing:      rec.Missing(),
		Record:       rec,
	}
}
