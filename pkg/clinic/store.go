package clinic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultFallbackCity = "Chennai"

// Store persists patients, doctors, appointments and AI reports.
type Store struct {
	Pool         *pgxpool.Pool
	Logger       *slog.Logger
	FallbackCity string
	Now          func() time.Time
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		Pool:         pool,
		Logger:       logger,
		FallbackCity: DefaultFallbackCity,
		Now:          time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func (s *Store) patientID(ctx context.Context, q pgx.Tx, email string) (int, error) {
	var pid int
	err := q.QueryRow(ctx, "SELECT pid FROM patient_info WHERE email = $1", email).Scan(&pid)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("patient %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up patient: %w", err)
	}
	return pid, nil
}

// RegisterPatient creates a patient and contact row. Emails are unique.
func (s *Store) RegisterPatient(ctx context.Context, reg Registration) (int, error) {
	email := normalizeEmail(reg.Email)
	dob, err := ParseAppointmentDate(reg.DOB)
	if err != nil {
		return 0, fmt.Errorf("%w: dob must be YYYY-MM-DD", ErrInvalidInput)
	}

	var pid int
	err = pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM patient_info WHERE email = $1)", email).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return ErrUserExists
		}

		if err := tx.QueryRow(ctx,
			"INSERT INTO patient (dob, gender, first_name, last_name) VALUES ($1, $2, $3, $4) RETURNING pid",
			dob, reg.Gender, reg.FirstName, reg.LastName,
		).Scan(&pid); err != nil {
			return fmt.Errorf("failed to create patient: %w", err)
		}

		_, err := tx.Exec(ctx,
			"INSERT INTO patient_info (pid, address, phone_no, email, city) VALUES ($1, $2, $3, $4, $5)",
			pid, reg.Address, reg.PhoneNo, email, reg.City,
		)
		return mapUniqueViolation(err, ErrUserExists)
	})
	if err != nil {
		return 0, err
	}
	s.Logger.Info("Patient registered", "pid", pid)
	return pid, nil
}

// UpsertPatient updates an existing profile or, when the email is unknown,
// creates the patient together with a medical record and allergy list.
func (s *Store) UpsertPatient(ctx context.Context, upd PatientUpdate) (UpsertResult, error) {
	email := normalizeEmail(upd.Email)
	var result UpsertResult

	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		pid, err := s.patientID(ctx, tx, email)
		switch {
		case errors.Is(err, ErrNotFound):
			result.Created = true
			result.PatientID, err = s.createPatientWithRecord(ctx, tx, email, upd)
			return err
		case err != nil:
			return err
		}
		result.PatientID = pid
		return s.updatePatient(ctx, tx, pid, upd)
	})
	return result, err
}

func (s *Store) createPatientWithRecord(ctx context.Context, tx pgx.Tx, email string, upd PatientUpdate) (int, error) {
	if blank(upd.FirstName) || blank(upd.DOB) || blank(upd.Address) || blank(upd.PhoneNo) || blank(upd.City) {
		return 0, ErrMissingFields
	}
	dob, err := ParseAppointmentDate(*upd.DOB)
	if err != nil {
		return 0, fmt.Errorf("%w: dob must be YYYY-MM-DD", ErrInvalidInput)
	}

	gender := valueOr(upd.Gender, "Not Specified")
	var pid int
	if err := tx.QueryRow(ctx,
		"INSERT INTO patient (dob, gender, first_name, last_name) VALUES ($1, $2, $3, $4) RETURNING pid",
		dob, gender, *upd.FirstName, valueOr(upd.LastName, ""),
	).Scan(&pid); err != nil {
		return 0, fmt.Errorf("failed to create patient: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO patient_info (pid, address, phone_no, email, city) VALUES ($1, $2, $3, $4, $5)",
		pid, *upd.Address, *upd.PhoneNo, email, *upd.City,
	); err != nil {
		return 0, mapUniqueViolation(err, ErrUserExists)
	}

	notes := valueOr(upd.Notes, "")
	var recordID int
	if err := tx.QueryRow(ctx,
		"INSERT INTO record (pid, age, medical_history, insured, notes) VALUES ($1, $2, $3, $4, $5) RETURNING record_id",
		pid, Age(dob, s.Now()), valueOr(upd.MedicalHistory, ""), upd.Insured != nil && *upd.Insured, notes,
	).Scan(&recordID); err != nil {
		return 0, fmt.Errorf("failed to create record: %w", err)
	}
	if err := replaceAllergies(ctx, tx, recordID, notes); err != nil {
		return 0, err
	}

	s.Logger.Info("Patient created with record", "pid", pid, "record_id", recordID)
	return pid, nil
}

func (s *Store) updatePatient(ctx context.Context, tx pgx.Tx, pid int, upd PatientUpdate) error {
	var dob *time.Time
	if upd.DOB != nil {
		d, err := ParseAppointmentDate(*upd.DOB)
		if err != nil {
			return fmt.Errorf("%w: dob must be YYYY-MM-DD", ErrInvalidInput)
		}
		dob = &d
	}

	if _, err := tx.Exec(ctx, `
		UPDATE patient SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			dob = COALESCE($4, dob),
			gender = COALESCE($5, gender)
		WHERE pid = $1`,
		pid, upd.FirstName, upd.LastName, dob, upd.Gender,
	); err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE patient_info SET
			address = COALESCE($2, address),
			phone_no = COALESCE($3, phone_no),
			city = COALESCE($4, city)
		WHERE pid = $1`,
		pid, upd.Address, upd.PhoneNo, upd.City,
	); err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}

	var recordID int
	err := tx.QueryRow(ctx, "SELECT record_id FROM record WHERE pid = $1 ORDER BY record_id LIMIT 1", pid).Scan(&recordID)
	if errors.Is(err, pgx.ErrNoRows) {
		_, err = tx.Exec(ctx,
			"INSERT INTO record (pid, medical_history, insured, notes) VALUES ($1, $2, $3, $4)",
			pid, valueOr(upd.MedicalHistory, ""), upd.Insured != nil && *upd.Insured, valueOr(upd.Notes, ""),
		)
		if err != nil {
			return fmt.Errorf("failed to create record: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE record SET
			medical_history = COALESCE($2, medical_history),
			insured = COALESCE($3, insured),
			notes = COALESCE($4, notes)
		WHERE record_id = $1`,
		recordID, upd.MedicalHistory, upd.Insured, upd.Notes,
	); err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if upd.Notes != nil {
		return replaceAllergies(ctx, tx, recordID, *upd.Notes)
	}
	return nil
}

// replaceAllergies stores one row per allergy, or a single empty row when the
// notes name none.
func replaceAllergies(ctx context.Context, tx pgx.Tx, recordID int, notes string) error {
	if _, err := tx.Exec(ctx, "DELETE FROM record_info WHERE record_id = $1", recordID); err != nil {
		return fmt.Errorf("failed to clear allergies: %w", err)
	}
	allergies := SplitAllergies(notes)
	if len(allergies) == 0 {
		allergies = []string{""}
	}
	batch := &pgx.Batch{}
	for _, a := range allergies {
		batch.Queue("INSERT INTO record_info (record_id, allergy) VALUES ($1, $2)", recordID, a)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save allergies: %w", err)
	}
	return nil
}

// GetDetails loads the profile of the patient registered under email.
func (s *Store) GetDetails(ctx context.Context, email string) (*Details, error) {
	email = normalizeEmail(email)
	var (
		d       Details
		dob     pgtype.Date
		gender  pgtype.Text
		address pgtype.Text
		phone   pgtype.Text
		city    pgtype.Text
		history pgtype.Text
		insured pgtype.Bool
		notes   pgtype.Text
	)
	err := s.Pool.QueryRow(ctx, `
		SELECT p.first_name, p.last_name, p.dob, p.gender,
		       i.address, i.phone_no, i.email, i.city,
		       r.medical_history, r.insured, r.notes
		FROM patient_info i
		JOIN patient p ON p.pid = i.pid
		LEFT JOIN LATERAL (
			SELECT medical_history, insured, notes FROM record
			WHERE record.pid = p.pid ORDER BY record_id LIMIT 1
		) r ON TRUE
		WHERE i.email = $1`, email,
	).Scan(
		&d.Patient.FirstName, &d.Patient.LastName, &dob, &gender,
		&address, &phone, &d.Contact.Email, &city,
		&history, &insured, &notes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get details: %w", err)
	}

	if dob.Valid {
		d.Patient.DOB = dob.Time.Format(DateLayout)
	}
	d.Patient.Gender = gender.String
	d.Contact.Address = address.String
	d.Contact.PhoneNo = phone.String
	d.Contact.City = city.String
	d.Record = RecordSummary{MedicalHistory: history.String, Insured: insured.Bool, Notes: notes.String}
	return &d, nil
}

// DoctorsByCity matches doctors whose city contains the given text. When none
// match, doctors in the fallback city are returned instead.
func (s *Store) DoctorsByCity(ctx context.Context, city string) ([]Doctor, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, fmt.Errorf("%w: city parameter is required", ErrInvalidInput)
	}

	doctors, fellBack, err := findDoctors(ctx, city, s.FallbackCity, s.doctorsMatching)
	if fellBack {
		s.Logger.Info("No doctors found, falling back", "city", city, "fallback", s.FallbackCity)
	}
	return doctors, err
}

func (s *Store) doctorsMatching(ctx context.Context, city string) ([]Doctor, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT doc_id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(clinic_name, ''),
		       COALESCE(city, ''), COALESCE(specialty, ''), COALESCE(years_of_experience, 0)
		FROM doctor
		WHERE city ILIKE '%' || $1 || '%'
		ORDER BY doc_id`, city)
	if err != nil {
		return nil, fmt.Errorf("failed to query doctors: %w", err)
	}
	doctors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Doctor, error) {
		var d Doctor
		err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.ClinicName, &d.City, &d.Specialty, &d.YearsOfExperience)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read doctors: %w", err)
	}
	return doctors, nil
}

// BookAppointment reserves a slot and assigns the doctor to the patient and
// the patient's lesions.
func (s *Store) BookAppointment(ctx context.Context, req BookingRequest) (*Booking, error) {
	day, slot, err := parseBookingSlot(req)
	if err != nil {
		return nil, err
	}

	booking := &Booking{DoctorID: req.DoctorID, Date: req.Date, Time: req.Time}
	err = pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		pid, err := s.patientID(ctx, tx, normalizeEmail(req.PatientEmail))
		if err != nil {
			return err
		}
		booking.PatientID = pid

		booking.AppointmentID, err = reserveSlot(ctx, tx, req.DoctorID, pid, day, slot)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, "UPDATE patient SET doc_id = $2 WHERE pid = $1", pid, req.DoctorID); err != nil {
			return fmt.Errorf("failed to assign doctor: %w", err)
		}
		if _, err := tx.Exec(ctx, "UPDATE lesion SET doc_id = $2 WHERE pid = $1", pid, req.DoctorID); err != nil {
			return fmt.Errorf("failed to assign lesions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Appointment booked", "appointment_id", booking.AppointmentID, "doctor_id", req.DoctorID, "date", req.Date)
	return booking, nil
}

// BookedSlots lists the taken times for a doctor on a date.
func (s *Store) BookedSlots(ctx context.Context, doctorID int, date string) ([]string, error) {
	day, err := ParseAppointmentDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx,
		"SELECT time FROM appointment WHERE doc_id = $1 AND date = $2 ORDER BY time", doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	slots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var t pgtype.Time
		if err := row.Scan(&t); err != nil {
			return "", err
		}
		return FormatAppointmentTime(time.Duration(t.Microseconds) * time.Microsecond), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read slots: %w", err)
	}
	return slots, nil
}

// Appointments returns a patient's appointments split around today.
func (s *Store) Appointments(ctx context.Context, email string) (*AppointmentList, error) {
	email = normalizeEmail(email)
	var pid int
	err := s.Pool.QueryRow(ctx, "SELECT pid FROM patient_info WHERE email = $1", email).Scan(&pid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up patient: %w", err)
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT a.app_id, a.date, a.time,
		       COALESCE(d.first_name, ''), COALESCE(d.last_name, ''), COALESCE(d.clinic_name, '')
		FROM appointment a
		LEFT JOIN doctor d ON d.doc_id = a.doc_id
		WHERE a.pid = $1
		ORDER BY a.date, a.time`, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	appointments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Appointment, error) {
		var (
			a     Appointment
			clock pgtype.Time
		)
		if err := row.Scan(&a.ID, &a.day, &clock, &a.Doctor.FirstName, &a.Doctor.LastName, &a.Doctor.ClinicName); err != nil {
			return a, err
		}
		a.Date = a.day.Format(DateLayout)
		a.Time = FormatAppointmentTime(time.Duration(clock.Microseconds) * time.Microsecond)
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read appointments: %w", err)
	}

	list := Partition(appointments, s.Now())
	return &list, nil
}

// CancelAppointment deletes an appointment and describes what was cancelled.
func (s *Store) CancelAppointment(ctx context.Context, appointmentID int) (string, error) {
	var (
		docID pgtype.Int4
		doc   *Doctor
	)
	err := s.Pool.QueryRow(ctx, "SELECT doc_id FROM appointment WHERE app_id = $1", appointmentID).Scan(&docID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load appointment: %w", err)
	}

	if docID.Valid {
		var d Doctor
		err := s.Pool.QueryRow(ctx,
			"SELECT doc_id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(clinic_name, ''), COALESCE(city, '') FROM doctor WHERE doc_id = $1",
			docID.Int32,
		).Scan(&d.ID, &d.FirstName, &d.LastName, &d.ClinicName, &d.City)
		switch {
		case err == nil:
			doc = &d
		case !errors.Is(err, pgx.ErrNoRows):
			return "", fmt.Errorf("failed to load doctor: %w", err)
		}
	}

	if _, err := s.Pool.Exec(ctx, "DELETE FROM appointment WHERE app_id = $1", appointmentID); err != nil {
		return "", fmt.Errorf("failed to cancel appointment: %w", err)
	}
	s.Logger.Info("Appointment cancelled", "appointment_id", appointmentID)
	return cancellationMessage(doc), nil
}

// SaveImage stores an uploaded lesion photo.
func (s *Store) SaveImage(ctx context.Context, img Image) (int, error) {
	var id int
	err := s.Pool.QueryRow(ctx,
		"INSERT INTO image (name, data, content_type) VALUES ($1, $2, $3) RETURNING id",
		img.Name, img.Data, img.ContentType,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save image: %w", err)
	}
	return id, nil
}

// SaveDiagnosis stores an AI report and links it to the patient's latest
// record, adding a lesion entry. Without a patient email the most recent
// record overall is used.
func (s *Store) SaveDiagnosis(ctx context.Context, dx Diagnosis) (int, error) {
	var repID int
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			"INSERT INTO ai_doctor (diagnosis, severity_level) VALUES ($1, $2) RETURNING rep_id",
			dx.Report, dx.Severity,
		).Scan(&repID); err != nil {
			return fmt.Errorf("failed to save diagnosis: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO ai_doctor_info (rep_id, prescription) VALUES ($1, $2)", repID, dx.Report,
		); err != nil {
			return fmt.Errorf("failed to save diagnosis info: %w", err)
		}

		var recordID, pid int
		err := tx.QueryRow(ctx, `
			SELECT r.record_id, r.pid FROM record r
			LEFT JOIN patient_info i ON i.pid = r.pid
			WHERE $1::text = '' OR i.email = $1::text
			ORDER BY r.record_id DESC LIMIT 1`, normalizeEmail(dx.PatientEmail),
		).Scan(&recordID, &pid)
		if errors.Is(err, pgx.ErrNoRows) {
			s.Logger.Warn("No patient record found to attach diagnosis", "rep_id", repID, "email", dx.PatientEmail)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find record: %w", err)
		}

		if _, err := tx.Exec(ctx, "UPDATE record SET rep_id = $2 WHERE record_id = $1", recordID, repID); err != nil {
			return fmt.Errorf("failed to link record: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO lesion (image_file_name, lesion_type, pid, report_id, previous_prescription)
			VALUES ($1, $2, $3, $4, $5)`,
			dx.ImageName, dx.Lesion, pid, recordID, dx.Prescription,
		); err != nil {
			return fmt.Errorf("failed to save lesion: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return repID, nil
}

func mapUniqueViolation(err error, target error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return target
	}
	return err
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func valueOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
