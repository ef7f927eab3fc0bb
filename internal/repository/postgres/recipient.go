package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/itgabriell/audicare-engine/internal/cache"
	"github.com/itgabriell/audicare-engine/internal/domain"
)

// RecipientRepo implements automation.RecipientRepository against PostgreSQL.
// Plain contact reads go through the contact cache; the patient-joined
// projection always hits the database, since appointment data moves too
// fast to cache usefully.
type RecipientRepo struct {
	db       *sql.DB
	contacts *cache.ContactCache
}

// NewRecipientRepo creates a Postgres-backed recipient repository. contacts
// may be nil to disable caching.
func NewRecipientRepo(db *sql.DB, contacts *cache.ContactCache) *RecipientRepo {
	return &RecipientRepo{db: db, contacts: contacts}
}

func (r *RecipientRepo) Contacts(ctx context.Context, clinicID string) ([]domain.Recipient, error) {
	if cached, ok := r.contacts.Get(ctx, clinicID); ok {
		return wrapContacts(cached), nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, clinic_id, name, COALESCE(phone,''), COALESCE(email,''),
		       birth_date, created_at
		FROM contacts
		WHERE clinic_id = $1
		ORDER BY name ASC
	`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(
			&c.ID, &c.ClinicID, &c.Name, &c.Phone, &c.Email,
			&c.BirthDate, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.contacts.Set(ctx, clinicID, contacts)
	return wrapContacts(contacts), nil
}

func wrapContacts(contacts []domain.Contact) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, domain.Recipient{Contact: c})
	}
	return out
}

func (r *RecipientRepo) ContactsWithPatients(ctx context.Context, clinicID string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.clinic_id, c.name, COALESCE(c.phone,''), COALESCE(c.email,''),
		       c.birth_date, c.created_at,
		       p.id, p.status, p.created_at
		FROM contacts c
		LEFT JOIN patients p ON p.contact_id = c.id AND p.clinic_id = c.clinic_id
		WHERE c.clinic_id = $1
		ORDER BY c.name ASC
	`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list contacts with patients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	patientIdx := map[string]int{}
	for rows.Next() {
		var c domain.Contact
		var pID, pStatus sql.NullString
		var pCreated sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.ClinicID, &c.Name, &c.Phone, &c.Email,
			&c.BirthDate, &c.CreatedAt,
			&pID, &pStatus, &pCreated,
		); err != nil {
			return nil, fmt.Errorf("scan contact with patient: %w", err)
		}

		rec := domain.Recipient{Contact: c}
		if pID.Valid {
			rec.Patient = &domain.Patient{
				ID:        pID.String,
				ClinicID:  c.ClinicID,
				ContactID: c.ID,
				Status:    pStatus.String,
				CreatedAt: pCreated.Time,
			}
			patientIdx[pID.String] = len(out)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(patientIdx) == 0 {
		return out, nil
	}
	if err := r.attachAppointments(ctx, clinicID, patientIdx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachAppointments loads all appointments for the clinic's patients in one
// query and distributes them onto the recipient slice.
func (r *RecipientRepo) attachAppointments(ctx context.Context, clinicID string, patientIdx map[string]int, recipients []domain.Recipient) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.patient_id, a.scheduled_at, a.status
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE p.clinic_id = $1
		ORDER BY a.scheduled_at ASC
	`, clinicID)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.ScheduledAt, &a.Status); err != nil {
			return fmt.Errorf("scan appointment: %w", err)
		}
		if i, ok := patientIdx[a.PatientID]; ok {
			recipients[i].Appointments = append(recipients[i].Appointments, a)
		}
	}
	return rows.Err()
}

func (r *RecipientRepo) PatientCreatedSince(ctx context.Context, clinicID string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patients
			WHERE clinic_id = $1 AND created_at >= $2
		)
	`, clinicID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient created: %w", err)
	}
	return exists, nil
}
