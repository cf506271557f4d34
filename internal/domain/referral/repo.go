package referral

import (
	"context"
)

type ReferrerRepository interface {
	GetByID(ctx context.Context, id int64) (*Referrer, error)
	// FindByAttrs matches all four attributes exactly.
	FindByAttrs(ctx context.Context, attrs ReferrerAttrs) (*Referrer, error)
	// Create inserts attrs, or returns the existing row when an identical
	// referrer was inserted concurrently.
	Create(ctx context.Context, attrs ReferrerAttrs) (*Referrer, error)
	// List returns referrers ordered by id. limit <= 0 returns all rows.
	List(ctx context.Context, limit, offset int) ([]*Referrer, int, error)
}

type PatientRepository interface {
	GetByID(ctx context.Context, id int64) (*Patient, error)
	FindByAttrs(ctx context.Context, attrs PatientAttrs) (*Patient, error)
	Create(ctx context.Context, attrs PatientAttrs) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type ReferralRepository interface {
	GetByID(ctx context.Context, id int64) (*Referral, error)
	// Create inserts a referral row and returns its generated id.
	Create(ctx context.Context, referrerID, patientID int64, initialAssessment, notes, specialistName string) (int64, error)
	// List returns denormalized referrals ordered by id.
	List(ctx context.Context, limit, offset int) ([]*Referral, int, error)
	// NextID is one past the highest referral id, or 1 for an empty table.
	NextID(ctx context.Context) (int64, error)
}
