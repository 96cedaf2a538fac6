package database

import (
	"context"
	"fmt"
)

type migration struct {
	name string
	sql  string
}

// Tables are created in dependency order. Every statement is idempotent.
var migrations = []migration{
	{"doctor", `
		CREATE TABLE IF NOT EXISTS doctor (
			doc_id SERIAL PRIMARY KEY,
			first_name VARCHAR(50),
			last_name VARCHAR(50),
			clinic_name VARCHAR(100),
			city VARCHAR(50),
			specialty VARCHAR(50),
			years_of_experience INTEGER
		)`},
	{"doctor_info", `
		CREATE TABLE IF NOT EXISTS doctor_info (
			doc_id INTEGER PRIMARY KEY REFERENCES doctor(doc_id),
			prescription VARCHAR(255)
		)`},
	{"patient", `
		CREATE TABLE IF NOT EXISTS patient (
			pid SERIAL PRIMARY KEY,
			dob DATE,
			gender VARCHAR(20),
			first_name VARCHAR(50) NOT NULL,
			last_name VARCHAR(50) NOT NULL DEFAULT '',
			doc_id INTEGER REFERENCES doctor(doc_id)
		)`},
	{"patient_info", `
		CREATE TABLE IF NOT EXISTS patient_info (
			pid INTEGER PRIMARY KEY REFERENCES patient(pid) ON DELETE CASCADE,
			address VARCHAR(255),
			phone_no VARCHAR(20),
			email VARCHAR(100) UNIQUE,
			city VARCHAR(100)
		)`},
	{"ai_doctor", `
		CREATE TABLE IF NOT EXISTS ai_doctor (
			rep_id SERIAL PRIMARY KEY,
			diagnosis TEXT,
			severity_level VARCHAR(50)
		)`},
	{"ai_doctor_info", `
		CREATE TABLE IF NOT EXISTS ai_doctor_info (
			rep_id INTEGER PRIMARY KEY REFERENCES ai_doctor(rep_id) ON DELETE CASCADE,
			prescription TEXT
		)`},
	{"record", `
		CREATE TABLE IF NOT EXISTS record (
			record_id SERIAL PRIMARY KEY,
			age INTEGER,
			medical_history TEXT NOT NULL DEFAULT '',
			insured BOOLEAN NOT NULL DEFAULT FALSE,
			notes TEXT NOT NULL DEFAULT '',
			pid INTEGER REFERENCES patient(pid) ON DELETE CASCADE,
			rep_id INTEGER REFERENCES ai_doctor(rep_id)
		)`},
	{"record_info", `
		CREATE TABLE IF NOT EXISTS record_info (
			id SERIAL PRIMARY KEY,
			record_id INTEGER REFERENCES record(record_id) ON DELETE CASCADE,
			allergy VARCHAR(255)
		)`},
	{"image", `
		CREATE TABLE IF NOT EXISTS image (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			data BYTEA NOT NULL,
			content_type VARCHAR(100) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"lesion", `
		CREATE TABLE IF NOT EXISTS lesion (
			lesion_id SERIAL PRIMARY KEY,
			previous_prescription VARCHAR(255),
			image_file_name VARCHAR(255),
			lesion_type VARCHAR(50) NOT NULL,
			pid INTEGER REFERENCES patient(pid) ON DELETE CASCADE,
			report_id INTEGER REFERENCES record(record_id),
			doc_id INTEGER REFERENCES doctor(doc_id)
		)`},
	{"appointment", `
		CREATE TABLE IF NOT EXISTS appointment (
			app_id SERIAL PRIMARY KEY,
			date DATE NOT NULL,
			time TIME NOT NULL,
			pid INTEGER REFERENCES patient(pid) ON DELETE CASCADE,
			doc_id INTEGER REFERENCES doctor(doc_id),
			UNIQUE (doc_id, date, time)
		)`},
	{"diagnosis_jobs", `
		CREATE TABLE IF NOT EXISTS diagnosis_jobs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			image_id INTEGER REFERENCES image(id) ON DELETE SET NULL,
			patient_email VARCHAR(100),
			label VARCHAR(50) NOT NULL,
			topic TEXT NOT NULL,
			prescription TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			config JSONB,
			state JSONB,
			report TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"diagnosis_logs", `
		CREATE TABLE IF NOT EXISTS diagnosis_logs (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES diagnosis_jobs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		)`},
	{"idx_diagnosis_logs_job_id", "CREATE INDEX IF NOT EXISTS idx_diagnosis_logs_job_id ON diagnosis_logs(job_id)"},
	{"idx_diagnosis_jobs_created_at", "CREATE INDEX IF NOT EXISTS idx_diagnosis_jobs_created_at ON diagnosis_jobs(created_at DESC)"},
	{"idx_appointment_pid", "CREATE INDEX IF NOT EXISTS idx_appointment_pid ON appointment(pid)"},
}

// InitSchema creates the clinic and diagnosis tables.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply %s: %w", m.name, err)
		}
	}
	return nil
}
