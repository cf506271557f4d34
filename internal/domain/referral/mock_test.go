package referral

import (
	"context"
	"sync"
)

// memDB is an in-memory stand-in for the three tables. Create on referrer and
// patient behaves like INSERT ... ON CONFLICT DO NOTHING on the identity
// constraint, and referral inserts check foreign keys.
type memDB struct {
	mu        sync.Mutex
	referrers []*Referrer
	patients  []*Patient
	referrals []referralRow

	// fail makes the named operation return the error.
	fail map[string]error
}

type referralRow struct {
	id, referrerID, patientID     int64
	assessment, notes, specialist string
}

func newMemDB() *memDB {
	return &memDB{fail: make(map[string]error)}
}

func (m *memDB) failure(op string) error {
	return m.fail[op]
}

func (m *memDB) rowCounts() (referrers, patients, referrals int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.referrers), len(m.patients), len(m.referrals)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// -- Mock Referrer Repository --

type mockReferrerRepo struct{ db *memDB }

func (r *mockReferrerRepo) GetByID(_ context.Context, id int64) (*Referrer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("referrer.get"); err != nil {
		return nil, err
	}
	for _, rf := range r.db.referrers {
		if rf.ID == id {
			cp := *rf
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Resource: "referrer", ID: id}
}

func (r *mockReferrerRepo) findLocked(a ReferrerAttrs) *Referrer {
	for _, rf := range r.db.referrers {
		if rf.ReferrerAttrs == a {
			cp := *rf
			return &cp
		}
	}
	return nil
}

func (r *mockReferrerRepo) FindByAttrs(_ context.Context, a ReferrerAttrs) (*Referrer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("referrer.find"); err != nil {
		return nil, err
	}
	if rf := r.findLocked(a); rf != nil {
		return rf, nil
	}
	return nil, &NotFoundError{Resource: "referrer"}
}

func (r *mockReferrerRepo) Create(_ context.Context, a ReferrerAttrs) (*Referrer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("referrer.create"); err != nil {
		return nil, err
	}
	if rf := r.findLocked(a); rf != nil {
		return rf, nil
	}
	rf := &Referrer{ID: int64(len(r.db.referrers) + 1), ReferrerAttrs: a}
	r.db.referrers = append(r.db.referrers, rf)
	cp := *rf
	return &cp, nil
}

func (r *mockReferrerRepo) List(_ context.Context, limit, offset int) ([]*Referrer, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("referrer.list"); err != nil {
		return nil, 0, err
	}
	return page(r.db.referrers, limit, offset), len(r.db.referrers), nil
}

// -- Mock Patient Repository --

type mockPatientRepo struct{ db *memDB }

func (r *mockPatientRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("patient.get"); err != nil {
		return nil, err
	}
	for _, p := range r.db.patients {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Resource: "patient", ID: id}
}

func (r *mockPatientRepo) findLocked(a PatientAttrs) *Patient {
	for _, p := range r.db.patients {
		if p.PatientAttrs == a {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (r *mockPatientRepo) FindByAttrs(_ context.Context, a PatientAttrs) (*Patient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("patient.find"); err != nil {
		return nil, err
	}
	if p := r.findLocked(a); p != nil {
		return p, nil
	}
	return nil, &NotFoundError{Resource: "patient"}
}

func (r *mockPatientRepo) Create(_ context.Context, a PatientAttrs) (*Patient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("patient.create"); err != nil {
		return nil, err
	}
	if p := r.findLocked(a); p != nil {
		return p, nil
	}
	p := &Patient{ID: int64(len(r.db.patients) + 1), PatientAttrs: a}
	r.db.patients = append(r.db.patients, p)
	cp := *p
	return &cp, nil
}

func (r *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("patient.list"); err != nil {
		return nil, 0, err
	}
	return page(r.db.patients, limit, offset), len(r.db.patients), nil
}

// -- Mock Referral Repository --

type mockReferralRepo struct{ db *memDB }

func (r *mockReferralRepo) joinLocked(row referralRow) *Referral {
	ref := &Referral{
		ID:                row.id,
		InitialAssessment: row.assessment,
		Notes:             row.notes,
		SpecialistName:    row.specialist,
	}
	for _, rf := range r.db.referrers {
		if rf.ID == row.referrerID {
			ref.Referrer = *rf
		}
	}
	for _, p := range r.db.patients {
		if p.ID == row.patientID {
			ref.Patient = *p
		}
	}
	return ref
}

func (r *mockReferralRepo) GetByID(_ context.Context, id int64) (*Referral, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("referral.get"); err != nil {
		return nil, err
	}
	for _, row := range r.db.referrals {
		if row.id == id {
			return r.joinLocked(row), nil
		}
	}
	return nil, &NotFoundError{Resource: "referral", ID: id}
}

func (r *mockReferralRepo) Create(_ context.Context, referrerID, patientID int64, assessment, notes, specialist string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("referral.create"); err != nil {
		return 0, err
	}
	if referrerID < 1 || referrerID > int64(len(r.db.referrers)) {
		return 0, &ConstraintError{Op: "create referral", Constraint: "referral_referrerid_fkey"}
	}
	if patientID < 1 || patientID > int64(len(r.db.patients)) {
		return 0, &ConstraintError{Op: "create referral", Constraint: "referral_patientid_fkey"}
	}
	id := int64(len(r.db.referrals) + 1)
	r.db.referrals = append(r.db.referrals, referralRow{
		id: id, referrerID: referrerID, patientID: patientID,
		assessment: assessment, notes: notes, specialist: specialist,
	})
	return id, nil
}

func (r *mockReferralRepo) List(_ context.Context, limit, offset int) ([]*Referral, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("referral.list"); err != nil {
		return nil, 0, err
	}
	rows := page(r.db.referrals, limit, offset)
	out := make([]*Referral, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.joinLocked(row))
	}
	return out, len(r.db.referrals), nil
}

func (r *mockReferralRepo) NextID(_ context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("referral.next"); err != nil {
		return 0, err
	}
	return int64(len(r.db.referrals) + 1), nil
}
