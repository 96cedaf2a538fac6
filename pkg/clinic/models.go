package clinic

import "time"

type Patient struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
	Gender    string `json:"gender"`
}

type Contact struct {
	Address string `json:"address"`
	PhoneNo string `json:"phone_no"`
	Email   string `json:"email"`
	City    string `json:"city"`
}

type RecordSummary struct {
	MedicalHistory string `json:"medical_history"`
	Insured        bool   `json:"insured"`
	Notes          string `json:"notes"`
}

// Details is the profile returned to the patient app.
type Details struct {
	Patient Patient       `json:"patient"`
	Contact Contact       `json:"contact"`
	Record  RecordSummary `json:"record"`
}

type Registration struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob" binding:"required"`
	Gender    string `json:"gender"`
	Address   string `json:"address"`
	PhoneNo   string `json:"phone_no"`
	City      string `json:"city"`
}

// PatientUpdate carries a partial profile. Nil fields are left untouched on
// an existing patient.
type PatientUpdate struct {
	Email          string  `json:"email" binding:"required,email"`
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	DOB            *string `json:"dob"`
	Gender         *string `json:"gender"`
	Address        *string `json:"address"`
	PhoneNo        *string `json:"phone_no"`
	City           *string `json:"city"`
	MedicalHistory *string `json:"medical_history"`
	Insured        *bool   `json:"insured"`
	Notes          *string `json:"notes"`
}

type UpsertResult struct {
	PatientID int
	Created   bool
}

type Doctor struct {
	ID                int    `json:"doc_id"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	ClinicName        string `json:"clinic_name"`
	City              string `json:"city"`
	Specialty         string `json:"specialty"`
	YearsOfExperience int    `json:"years_of_experience"`
}

type BookingRequest struct {
	DoctorID     int    `json:"doctorId" binding:"required"`
	Date         string `json:"date" binding:"required"`
	Time         string `json:"time" binding:"required"`
	PatientEmail string `json:"patientEmail" binding:"required"`
}

type Booking struct {
	AppointmentID int    `json:"appointment_id"`
	DoctorID      int    `json:"doctor_id"`
	PatientID     int    `json:"patient_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

type AppointmentDoctor struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ClinicName string `json:"clinic_name"`
}

type Appointment struct {
	ID     int               `json:"appointment_id"`
	Date   string            `json:"date"`
	Time   string            `json:"time"`
	Doctor AppointmentDoctor `json:"doctor"`

	day time.Time
}

type AppointmentList struct {
	Upcoming []Appointment `json:"upcoming"`
	Past     []Appointment `json:"past"`
}

type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Diagnosis is a finished AI report attached to a patient's latest record.
type Diagnosis struct {
	PatientEmail string
	Lesion       string
	Report       string
	Severity     string
	ImageName    string
	Prescription string
}
