package referral

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without time or zone. It is written to JSON as
// "YYYY-MM-DD" and stored in a DATE column.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate accepts exactly "YYYY-MM-DD" naming a real calendar day.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil || t.Format(dateLayout) != s {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC on d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return errors.New("date must be a string")
	}
	parsed, err := ParseDate(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ScanDate implements pgtype.DateScanner.
func (d *Date) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		*d = Date{}
		return nil
	}
	if v.InfinityModifier != pgtype.Finite {
		return errors.New("cannot scan infinite date")
	}
	*d = DateOf(v.Time)
	return nil
}

// DateValue implements pgtype.DateValuer.
func (d Date) DateValue() (pgtype.Date, error) {
	if d.IsZero() {
		return pgtype.Date{}, nil
	}
	return pgtype.Date{Time: d.Time(), Valid: true}, nil
}

// ReferrerAttrs identifies a referring clinician. Two referrers are the same
// when all four attributes match exactly.
type ReferrerAttrs struct {
	PracticeName string `json:"practiceName" validate:"required"`
	DoctorName   string `json:"doctorName" validate:"required"`
	PhoneNumber  string `json:"phoneNumber" validate:"required"`
	EmailAddress string `json:"emailAddress" validate:"required"`
}

// Referrer maps to the referrer table.
type Referrer struct {
	ID int64 `json:"referrerID"`
	ReferrerAttrs
}

// PatientAttrs identifies a patient. Two patients are the same when all three
// attributes match exactly.
type PatientAttrs struct {
	Name           string `json:"name" validate:"required"`
	MedicareNumber string `json:"medicareNumber" validate:"required"`
	DateOfBirth    Date   `json:"dateOfBirth" validate:"required"`
}

// Patient maps to the patient table.
type Patient struct {
	ID int64 `json:"patientID"`
	PatientAttrs
}

// Referral is the denormalized view of one referral row joined with its
// referrer and patient.
type Referral struct {
	ID                int64    `json:"referralID"`
	Referrer          Referrer `json:"referrer"`
	Patient           Patient  `json:"patient"`
	InitialAssessment string   `json:"initialAssessment"`
	Notes             string   `json:"notes"`
	SpecialistName    string   `json:"specialistName"`
}

// NewReferral is a validated create command.
type NewReferral struct {
	Referrer          ReferrerAttrs `json:"referrer"`
	Patient           PatientAttrs  `json:"patient"`
	InitialAssessment string        `json:"initialAssessment" validate:"required"`
	Notes             string        `json:"notes" validate:"required"`
	SpecialistName    string        `json:"specialistName" validate:"required"`
}

// ReferrerInput is the referrer object of a create request.
type ReferrerInput struct {
	PracticeName string `json:"practiceName"`
	DoctorName   string `json:"doctorName"`
	PhoneNumber  string `json:"phoneNumber"`
	EmailAddress string `json:"emailAddress"`
}

// PatientInput is the patient object of a create request. DateOfBirth stays a
// string until validation so a malformed date is reported as a field error.
type PatientInput struct {
	Name           string `json:"name"`
	MedicareNumber string `json:"medicareNumber"`
	DateOfBirth    string `json:"dateOfBirth"`
}

// CreateReferralRequest is the POST /referrals body. patientAssessment and
// specialist are accepted as alternate spellings.
type CreateReferralRequest struct {
	Referrer          *ReferrerInput `json:"referrer"`
	Patient           *PatientInput  `json:"patient"`
	InitialAssessment string         `json:"initialAssessment"`
	PatientAssessment string         `json:"patientAssessment"`
	Notes             string         `json:"notes"`
	SpecialistName    string         `json:"specialistName"`
	Specialist        string         `json:"specialist"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// normalize resolves aliases and parses the date of birth. It returns the
// JSON paths of fields that could not be parsed; missing fields are left to
// the validator.
func (r *CreateReferralRequest) normalize() (NewReferral, []string) {
	nr := NewReferral{
		InitialAssessment: firstNonEmpty(r.InitialAssessment, r.PatientAssessment),
		Notes:             r.Notes,
		SpecialistName:    firstNonEmpty(r.SpecialistName, r.Specialist),
	}

	if r.Referrer != nil {
		nr.Referrer = ReferrerAttrs(*r.Referrer)
	}

	var malformed []string
	if r.Patient != nil {
		nr.Patient.Name = r.Patient.Name
		nr.Patient.MedicareNumber = r.Patient.MedicareNumber
		if r.Patient.DateOfBirth != "" {
			dob, err := ParseDate(r.Patient.DateOfBirth)
			if err != nil {
				malformed = append(malformed, "patient.dateOfBirth")
			} else {
				nr.Patient.DateOfBirth = dob
			}
		}
	}
	return nr, malformed
}
