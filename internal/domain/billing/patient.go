package billing

import (
	"context"

	"github.com/google/uuid"
)

// PatientDirectory resolves patient references without coupling the billing
// ledger to the patient-records bounded context. The ledger only needs to
// know that a patient id is real; everything else about the patient belongs
// to another module
type PatientDirectory interface {
	// Exists reports whether the patient id resolves to a known patient
	Exists(ctx context.Context, patientID uuid.UUID) (bool, error)
}
