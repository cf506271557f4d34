package referral

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/referral/referral/internal/platform/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// storableID reports whether id fits the INTEGER id columns. pgx refuses to
// encode larger values, and such ids cannot have been issued.
func storableID(id int64) bool {
	return id >= math.MinInt32 && id <= math.MaxInt32
}

// classify maps a driver error to ConstraintError or ConnectivityError.
// Callers handle pgx.ErrNoRows before calling it.
func classify(op string, err error) error {
	if db.IsIntegrityViolation(err) {
		return &ConstraintError{Op: op, Constraint: db.ConstraintName(err), Err: err}
	}
	return &ConnectivityError{Op: op, Err: err}
}

// limitArg turns a non-positive limit into NULL, which LIMIT treats as "all".
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func count(ctx context.Context, q querier, op, table string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

// -- Referrer Repository --

type referrerRepoPG struct {
	pool *pgxpool.Pool
}

func NewReferrerRepo(pool *pgxpool.Pool) ReferrerRepository {
	return &referrerRepoPG{pool: pool}
}

func (r *referrerRepoPG) conn(ctx context.Context) querier {
	return conn(ctx, r.pool)
}

const referrerCols = `referrerid, practicename, doctorname, phonenumber, emailaddress`

func scanReferrer(row pgx.Row) (*Referrer, error) {
	var rf Referrer
	err := row.Scan(&rf.ID, &rf.PracticeName, &rf.DoctorName, &rf.PhoneNumber, &rf.EmailAddress)
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *referrerRepoPG) GetByID(ctx context.Context, id int64) (*Referrer, error) {
	if !storableID(id) {
		return nil, &NotFoundError{Resource: "referrer", ID: id}
	}
	rf, err := scanReferrer(r.conn(ctx).QueryRow(ctx,
		`SELECT `+referrerCols+` FROM referrer WHERE referrerid = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "referrer", ID: id}
	}
	if err != nil {
		return nil, classify("get referrer", err)
	}
	return rf, nil
}

func (r *referrerRepoPG) FindByAttrs(ctx context.Context, a ReferrerAttrs) (*Referrer, error) {
	rf, err := scanReferrer(r.conn(ctx).QueryRow(ctx, `
		SELECT `+referrerCols+` FROM referrer
		WHERE practicename = $1 AND doctorname = $2 AND phonenumber = $3 AND emailaddress = $4
		ORDER BY referrerid
		LIMIT 1`,
		a.PracticeName, a.DoctorName, a.PhoneNumber, a.EmailAddress))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "referrer"}
	}
	if err != nil {
		return nil, classify("find referrer", err)
	}
	return rf, nil
}

func (r *referrerRepoPG) Create(ctx context.Context, a ReferrerAttrs) (*Referrer, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referrer (practicename, doctorname, phonenumber, emailaddress)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT referrer_identity_key DO NOTHING
		RETURNING referrerid`,
		a.PracticeName, a.DoctorName, a.PhoneNumber, a.EmailAddress).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a race with an identical insert; return the winner.
		return r.FindByAttrs(ctx, a)
	}
	if err != nil {
		return nil, classify("create referrer", err)
	}
	return &Referrer{ID: id, ReferrerAttrs: a}, nil
}

func (r *referrerRepoPG) List(ctx context.Context, limit, offset int) ([]*Referrer, int, error) {
	q := r.conn(ctx)
	rows, err := q.Query(ctx,
		`SELECT `+referrerCols+` FROM referrer ORDER BY referrerid LIMIT $1 OFFSET $2`,
		limitArg(limit), offset)
	if err != nil {
		return nil, 0, classify("list referrers", err)
	}
	defer rows.Close()

	items := []*Referrer{}
	for rows.Next() {
		rf, err := scanReferrer(rows)
		if err != nil {
			return nil, 0, classify("scan referrer", err)
		}
		items = append(items, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify("list referrers", err)
	}

	if limit <= 0 {
		return items, len(items), nil
	}
	total, err := count(ctx, q, "count referrers", "referrer")
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	return conn(ctx, r.pool)
}

const patientCols = `patientid, name, medicarenumber, dateofbirth`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Name, &p.MedicareNumber, &p.DateOfBirth); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	if !storableID(id) {
		return nil, &NotFoundError{Resource: "patient", ID: id}
	}
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE patientid = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "patient", ID: id}
	}
	if err != nil {
		return nil, classify("get patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) FindByAttrs(ctx context.Context, a PatientAttrs) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE name = $1 AND medicarenumber = $2 AND dateofbirth = $3
		ORDER BY patientid
		LIMIT 1`,
		a.Name, a.MedicareNumber, a.DateOfBirth))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "patient"}
	}
	if err != nil {
		return nil, classify("find patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, a PatientAttrs) (*Patient, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (name, medicarenumber, dateofbirth)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT patient_identity_key DO NOTHING
		RETURNING patientid`,
		a.Name, a.MedicareNumber, a.DateOfBirth).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.FindByAttrs(ctx, a)
	}
	if err != nil {
		return nil, classify("create patient", err)
	}
	return &Patient{ID: id, PatientAttrs: a}, nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	q := r.conn(ctx)
	rows, err := q.Query(ctx,
		`SELECT `+patientCols+` FROM patient ORDER BY patientid LIMIT $1 OFFSET $2`,
		limitArg(limit), offset)
	if err != nil {
		return nil, 0, classify("list patients", err)
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, classify("scan patient", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify("list patients", err)
	}

	if limit <= 0 {
		return items, len(items), nil
	}
	total, err := count(ctx, q, "count patients", "patient")
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// -- Referral Repository --

type referralRepoPG struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) ReferralRepository {
	return &referralRepoPG{pool: pool}
}

func (r *referralRepoPG) conn(ctx context.Context) querier {
	return conn(ctx, r.pool)
}

const referralSelect = `
	SELECT r.referralid,
	       rf.referrerid, rf.practicename, rf.doctorname, rf.phonenumber, rf.emailaddress,
	       p.patientid, p.name, p.medicarenumber, p.dateofbirth,
	       r.initialassessment, r.notes, r.specialistname
	FROM referral r
	INNER JOIN referrer rf ON rf.referrerid = r.referrerid
	INNER JOIN patient p ON p.patientid = r.patientid`

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(
		&ref.ID,
		&ref.Referrer.ID, &ref.Referrer.PracticeName, &ref.Referrer.DoctorName, &ref.Referrer.PhoneNumber, &ref.Referrer.EmailAddress,
		&ref.Patient.ID, &ref.Patient.Name, &ref.Patient.MedicareNumber, &ref.Patient.DateOfBirth,
		&ref.InitialAssessment, &ref.Notes, &ref.SpecialistName,
	)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *referralRepoPG) GetByID(ctx context.Context, id int64) (*Referral, error) {
	if !storableID(id) {
		return nil, &NotFoundError{Resource: "referral", ID: id}
	}
	ref, err := scanReferral(r.conn(ctx).QueryRow(ctx, referralSelect+` WHERE r.referralid = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "referral", ID: id}
	}
	if err != nil {
		return nil, classify("get referral", err)
	}
	return ref, nil
}

func (r *referralRepoPG) Create(ctx context.Context, referrerID, patientID int64, initialAssessment, notes, specialistName string) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referral (referrerid, patientid, initialassessment, notes, specialistname)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING referralid`,
		referrerID, patientID, initialAssessment, notes, specialistName).Scan(&id)
	if err != nil {
		return 0, classify("create referral", err)
	}
	return id, nil
}

func (r *referralRepoPG) List(ctx context.Context, limit, offset int) ([]*Referral, int, error) {
	q := r.conn(ctx)
	rows, err := q.Query(ctx, referralSelect+` ORDER BY r.referralid LIMIT $1 OFFSET $2`, limitArg(limit), offset)
	if err != nil {
		return nil, 0, classify("list referrals", err)
	}
	defer rows.Close()

	items := []*Referral{}
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, 0, classify("scan referral", err)
		}
		items = append(items, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify("list referrals", err)
	}

	if limit <= 0 {
		return items, len(items), nil
	}
	total, err := count(ctx, q, "count referrals", "referral")
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *referralRepoPG) NextID(ctx context.Context) (int64, error) {
	var next int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(referralid), 0) + 1 FROM referral`).Scan(&next); err != nil {
		return 0, classify("next referral id", err)
	}
	return next, nil
}
