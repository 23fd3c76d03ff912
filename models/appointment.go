package models

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatusConfirmed is written when a linked order is paid
const AppointmentStatusConfirmed = "confirmed"

// Appointment is the slice of the booking module's table the engine touches
type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Status    string    `gorm:"type:varchar(20);not null" json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Appointment) TableName() string {
	return "appointments"
}
