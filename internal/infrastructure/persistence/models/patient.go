package models

// PatientModel is a read-side projection of the patient-records module. The
// billing ledger only resolves patient ids against it; patient demographics
// are owned elsewhere.
type PatientModel struct {
	BaseModel
	MedicalRecordNumber string `gorm:"type:varchar(50);not null;uniqueIndex"`
	FullName            string `gorm:"type:varchar(200);not null"`
	Status              string `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
}

// TableName returns the table name for GORM
func (PatientModel) TableName() string {
	return "patients"
}
