package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/medipay/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppointmentRepositoryImpl implements AppointmentRepository on the booking module's table
type AppointmentRepositoryImpl struct {
	*BaseRepository[models.Appointment, struct{}]
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(db *gorm.DB) AppointmentRepository {
	return &AppointmentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Appointment, struct{}](db),
	}
}

// Status returns the appointment status, or an empty string when it does not exist
func (r *AppointmentRepositoryImpl) Status(ctx context.Context, id uuid.UUID) (string, error) {
	var appt models.Appointment
	err := r.getDB(ctx).Select("id", "status").Where("id = ?", id).First(&appt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return appt.Status, nil
}

// Confirm flips the appointment to confirmed. It reports false when no row matched.
func (r *AppointmentRepositoryImpl) Confirm(ctx context.Context, id uuid.UUID) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
	}

	res := db.Model(&models.Appointment{}).Where("id = ?", id).
		Update("status", models.AppointmentStatusConfirmed)
	if res.Error != nil {
		err = fmt.Errorf("failed to confirm appointment %s: %w", id, res.Error)
	}
	if err = finish(db, shouldCommit, err); err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}
