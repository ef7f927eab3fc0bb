package domain

import "time"

// Contact is a person reachable by the clinic. Contacts are read-only input
// to the automation engine; it never mutates them.
type Contact struct {
	ID        string     `json:"id" db:"id"`
	ClinicID  string     `json:"clinic_id" db:"clinic_id"`
	Name      string     `json:"name" db:"name"`
	Phone     string     `json:"phone" db:"phone"`
	Email     string     `json:"email,omitempty" db:"email"`
	BirthDate *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// HasPhone reports whether the contact can receive a WhatsApp message.
func (c Contact) HasPhone() bool { return c.Phone != "" }

// Patient links a contact to the clinic's patient records.
type Patient struct {
	ID        string    `json:"id" db:"id"`
	ClinicID  string    `json:"clinic_id" db:"clinic_id"`
	ContactID string    `json:"contact_id" db:"contact_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Appointment is a scheduled visit for a patient.
type Appointment struct {
	ID          string    `json:"id" db:"id"`
	PatientID   string    `json:"patient_id" db:"patient_id"`
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	Status      string    `json:"status" db:"status"`
}

// Recipient is the projection the filter evaluator and dispatcher operate on:
// a contact optionally joined with its patient record and appointments.
type Recipient struct {
	Contact      Contact       `json:"contact"`
	Patient      *Patient      `json:"patient,omitempty"`
	Appointments []Appointment `json:"appointments,omitempty"`
}

// LastAppointment returns the most recent appointment, or nil when the
// recipient has none.
func (r Recipient) LastAppointment() *Appointment {
	var last *Appointment
	for i := range r.Appointments {
		a := &r.Appointments[i]
		if last == nil || a.ScheduledAt.After(last.ScheduledAt) {
			last = a
		}
	}
	return last
}
