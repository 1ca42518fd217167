package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/infrastructure/persistence/models"
)

// GormPatientDirectory implements PatientDirectory against the patients
// projection table
type GormPatientDirectory struct {
	db *gorm.DB
}

// NewGormPatientDirectory creates a new GormPatientDirectory
func NewGormPatientDirectory(db *gorm.DB) *GormPatientDirectory {
	return &GormPatientDirectory{db: db}
}

// Exists reports whether the patient id resolves to a known patient
func (d *GormPatientDirectory) Exists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).
		Model(&models.PatientModel{}).
		Where("id = ?", patientID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure GormPatientDirectory implements PatientDirectory
var _ billing.PatientDirectory = (*GormPatientDirectory)(nil)
