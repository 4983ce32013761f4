package intake

import "github.com/satriahrh/intake-bridge/domain/entities"

// Record is the intake picture the extractor fills.
type Record = entities.IntakeRecord

// Field names a record can fill.
type Field = entities.IntakeField

const (
	ClassificationNew      = entities.ClassificationNew
	ClassificationExisting = entities.ClassificationExisting

	FieldClassification = entities.FieldClassification
	FieldFullName       = entities.FieldFullName
	FieldPhone          = entities.FieldPhone
	FieldEmail          = entities.FieldEmail
	FieldIncident       = entities.FieldIncident
	FieldIncidentDate   = entities.FieldIncidentDate
	FieldLocation       = entities.FieldLocation
)

// set fills dst when it is empty and value is not, reporting a change.
func set(dst *string, value string) bool {
	if *dst != "" || value == "" {
		return false
	}
	*dst = value
	return true
}
