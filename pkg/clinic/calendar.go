package clinic

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "03:04 PM"
)

// ParseAppointmentDate parses a YYYY-MM-DD date.
func ParseAppointmentDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date format, use YYYY-MM-DD", ErrInvalidInput)
	}
	return d, nil
}

// ParseAppointmentTime parses a 12-hour "HH:MM AM/PM" clock time and returns
// the offset from midnight.
func ParseAppointmentTime(s string) (time.Duration, error) {
	t, err := time.Parse("3:04 PM", strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time format, use HH:MM AM/PM", ErrInvalidInput)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatAppointmentTime renders an offset from midnight as "HH:MM AM/PM".
func FormatAppointmentTime(d time.Duration) string {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format(TimeLayout)
}

// Age returns completed years between dob and today.
func Age(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// SplitAllergies turns the comma separated notes field into allergy entries.
func SplitAllergies(notes string) []string {
	var out []string
	for _, part := range strings.Split(notes, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Partition splits appointments into upcoming (today or later) and past.
// Input order is preserved in both lists.
func Partition(appointments []Appointment, today time.Time) AppointmentList {
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	list := AppointmentList{Upcoming: []Appointment{}, Past: []Appointment{}}
	for _, a := range appointments {
		if a.day.Before(start) {
			list.Past = append(list.Past, a)
		} else {
			list.Upcoming = append(list.Upcoming, a)
		}
	}
	return list
}

func cancellationMessage(doc *Doctor) string {
	name, clinicName, city := "Unknown doctor", "Unknown clinic", "Unknown location"
	if doc != nil {
		name = fmt.Sprintf("Dr. %s %s", doc.FirstName, doc.LastName)
		clinicName = doc.ClinicName
		city = doc.City
	}
	return fmt.Sprintf("You have cancelled the appointment with %s at %s in %s", name, clinicName, city)
}
