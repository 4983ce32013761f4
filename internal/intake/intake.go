package intake

import "strings"

// DuplicateWindow is how many recent utterances are remembered for
// duplicate suppression.
const DuplicateWindow = 25

// Update describes what a single Ingest call changed.
type Update struct {
	Duplicate bool
	Filled    []Field
	// Completed is true only on the call that first made the record complete.
	Completed bool
}

// Intake extracts intake fields from the finalized user utterances of one
// conversation. It is owned by a single connection and is not safe for
// concurrent use.
type Intake struct {
	record    Record
	recent    []string
	completed bool
}

// New creates an empty intake.
func New() *Intake {
	return &Intake{
		record: Record{Utterances: make([]string, 0)},
		recent: make([]string, 0, DuplicateWindow),
	}
}

// Ingest applies one utterance to the record. Exact repeats of a recently
// seen utterance are ignored.
func (in *Intake) Ingest(utterance string) Update {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return Update{}
	}
	if in.seen(text) {
		return Update{Duplicate: true}
	}
	in.remember(text)

	r := &in.record
	r.Utterances = append(r.Utterances, text)

	var upd Update
	fill := func(field Field, dst *string, value func(string) string) {
		if *dst != "" {
			return
		}
		if set(dst, value(text)) {
			upd.Filled = append(upd.Filled, field)
		}
	}
	fill(FieldClassification, &r.Classification, extractClassification)
	fill(FieldPhone, &r.Phone, extractPhone)
	fill(FieldEmail, &r.Email, extractEmail)
	fill(FieldFullName, &r.FullName, extractName)
	fill(FieldIncidentDate, &r.IncidentDate, extractDate)
	fill(FieldLocation, &r.Location, extractLocation)
	fill(FieldIncident, &r.Incident, extractIncident)

	if !in.completed && r.Complete() {
		in.completed = true
		upd.Completed = true
	}
	return upd
}

// Snapshot returns a copy of the current record.
func (in *Intake) Snapshot() Record {
	rec := in.record
	rec.Utterances = append([]string(nil), in.record.Utterances...)
	return rec
}

func (in *Intake) seen(text string) bool {
	for _, prev := range in.recent {
		if prev == text {
			return true
		}
	}
	return false
}

func (in *Intake) remember(text string) {
	if len(in.recent) == DuplicateWindow {
		copy(in.recent, in.recent[1:])
		in.recent = in.recent[:DuplicateWindow-1]
	}
	in.recent = append(in.recent, text)
}
