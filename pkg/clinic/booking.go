package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type doctorFinder func(ctx context.Context, city string) ([]Doctor, error)

// findDoctors looks doctors up by city and retries with the fallback city
// when nothing matches. fellBack reports whether the fallback was used.
func findDoctors(ctx context.Context, city, fallback string, find doctorFinder) (doctors []Doctor, fellBack bool, err error) {
	doctors, err = find(ctx, city)
	if err != nil || len(doctors) > 0 || fallback == "" {
		return doctors, false, err
	}
	doctors, err = find(ctx, fallback)
	return doctors, true, err
}

// parseBookingSlot validates the requested date and time.
func parseBookingSlot(req BookingRequest) (time.Time, pgtype.Time, error) {
	day, err := ParseAppointmentDate(req.Date)
	if err != nil {
		return time.Time{}, pgtype.Time{}, err
	}
	clock, err := ParseAppointmentTime(req.Time)
	if err != nil {
		return time.Time{}, pgtype.Time{}, err
	}
	return day, pgtype.Time{Microseconds: clock.Microseconds(), Valid: true}, nil
}

// reserveSlot inserts the appointment unless the doctor already has one at
// that date and time. A concurrent insert hitting the unique constraint is
// reported the same way.
func reserveSlot(ctx context.Context, q rowQuerier, doctorID, pid int, day time.Time, slot pgtype.Time) (int, error) {
	var taken bool
	if err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM appointment WHERE doc_id = $1 AND date = $2 AND time = $3)",
		doctorID, day, slot,
	).Scan(&taken); err != nil {
		return 0, fmt.Errorf("failed to check slot: %w", err)
	}
	if taken {
		return 0, ErrSlotTaken
	}

	var id int
	if err := q.QueryRow(ctx,
		"INSERT INTO appointment (date, time, pid, doc_id) VALUES ($1, $2, $3, $4) RETURNING app_id",
		day, slot, pid, doctorID,
	).Scan(&id); err != nil {
		return 0, mapUniqueViolation(err, ErrSlotTaken)
	}
	return id, nil
}
