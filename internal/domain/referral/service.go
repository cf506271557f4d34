package referral

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/referral/referral/internal/platform/auth"
	"github.com/referral/referral/internal/platform/cache"
	"github.com/referral/referral/internal/platform/db"
	"github.com/referral/referral/internal/platform/metrics"
)

type Service struct {
	referrers ReferrerRepository
	patients  PatientRepository
	referrals ReferralRepository
	tx        db.TxRunner
	validate  *validator.Validate

	cache    cache.Store
	cacheTTL time.Duration
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

func NewService(referrers ReferrerRepository, patients PatientRepository, referrals ReferralRepository, tx db.TxRunner) *Service {
	return &Service{
		referrers: referrers,
		patients:  patients,
		referrals: referrals,
		tx:        tx,
		validate:  newValidator(),
		logger:    zerolog.Nop(),
	}
}

// SetCache enables read-through caching of referrals by id. Referrals are
// immutable, so entries only ever expire.
func (s *Service) SetCache(store cache.Store, ttl time.Duration) {
	s.cache = store
	s.cacheTTL = ttl
}

func (s *Service) SetMetrics(m *metrics.Collector) { s.metrics = m }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// -- Referrals --

// CreateReferral validates req, resolves the referrer and patient by exact
// attributes (creating them when absent) and inserts the referral, all in one
// transaction.
func (s *Service) CreateReferral(ctx context.Context, req *CreateReferralRequest) (*Referral, error) {
	nr, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	var out *Referral
	var referrerReused, patientReused bool
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		referrer, reused, err := s.resolveReferrer(ctx, nr.Referrer)
		if err != nil {
			return err
		}
		referrerReused = reused

		patient, reused, err := s.resolvePatient(ctx, nr.Patient)
		if err != nil {
			return err
		}
		patientReused = reused

		id, err := s.referrals.Create(ctx, referrer.ID, patient.ID, nr.InitialAssessment, nr.Notes, nr.SpecialistName)
		if err != nil {
			return err
		}

		out = &Referral{
			ID:                id,
			Referrer:          Referrer{ID: referrer.ID, ReferrerAttrs: nr.Referrer},
			Patient:           Patient{ID: patient.ID, PatientAttrs: nr.Patient},
			InitialAssessment: nr.InitialAssessment,
			Notes:             nr.Notes,
			SpecialistName:    nr.SpecialistName,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PartyResolved("referrer", referrerReused)
	s.metrics.PartyResolved("patient", patientReused)
	s.metrics.ReferralCreated()

	s.logger.Info().
		Int64("referral_id", out.ID).
		Int64("referrer_id", out.Referrer.ID).
		Bool("referrer_reused", referrerReused).
		Int64("patient_id", out.Patient.ID).
		Bool("patient_reused", patientReused).
		Str("subject", auth.SubjectFromContext(ctx)).
		Msg("referral created")

	s.cachePut(ctx, out)
	return out, nil
}

// Validate resolves request aliases and checks that every required field is
// present and well formed.
func (s *Service) Validate(req *CreateReferralRequest) (NewReferral, error) {
	if req == nil {
		req = &CreateReferralRequest{}
	}
	nr, malformed := req.normalize()

	fields := fieldPaths(s.validate.Struct(nr))
	for _, path := range malformed {
		if !slices.Contains(fields, path) {
			fields = append(fields, path)
		}
	}
	if len(fields) > 0 {
		return NewReferral{}, &ValidationError{Fields: fields}
	}
	return nr, nil
}

func (s *Service) resolveReferrer(ctx context.Context, attrs ReferrerAttrs) (*Referrer, bool, error) {
	existing, err := s.referrers.FindByAttrs(ctx, attrs)
	if err == nil {
		s.logger.Debug().Int64("referrer_id", existing.ID).Bool("reused", true).Msg("referrer resolved")
		return existing, true, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	created, err := s.referrers.Create(ctx, attrs)
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug().Int64("referrer_id", created.ID).Bool("reused", false).Msg("referrer resolved")
	return created, false, nil
}

func (s *Service) resolvePatient(ctx context.Context, attrs PatientAttrs) (*Patient, bool, error) {
	existing, err := s.patients.FindByAttrs(ctx, attrs)
	if err == nil {
		s.logger.Debug().Int64("patient_id", existing.ID).Bool("reused", true).Msg("patient resolved")
		return existing, true, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	created, err := s.patients.Create(ctx, attrs)
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug().Int64("patient_id", created.ID).Bool("reused", false).Msg("patient resolved")
	return created, false, nil
}

func (s *Service) GetReferral(ctx context.Context, id int64) (*Referral, error) {
	if ref, ok := s.cacheGet(ctx, id); ok {
		return ref, nil
	}
	ref, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, ref)
	return ref, nil
}

func (s *Service) ListReferrals(ctx context.Context, limit, offset int) ([]*Referral, int, error) {
	return s.referrals.List(ctx, limit, offset)
}

func (s *Service) NextReferralID(ctx context.Context) (int64, error) {
	return s.referrals.NextID(ctx)
}

// -- Referrers --

func (s *Service) GetReferrer(ctx context.Context, id int64) (*Referrer, error) {
	return s.referrers.GetByID(ctx, id)
}

func (s *Service) ListReferrers(ctx context.Context, limit, offset int) ([]*Referrer, int, error) {
	return s.referrers.List(ctx, limit, offset)
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// -- Cache --

func referralCacheKey(id int64) string {
	return "referral:" + strconv.FormatInt(id, 10)
}

// cacheGet never fails the request; errors are logged and treated as a miss.
func (s *Service) cacheGet(ctx context.Context, id int64) (*Referral, bool) {
	if s.cache == nil {
		return nil, false
	}
	var ref Referral
	ok, err := cache.GetJSON(ctx, s.cache, referralCacheKey(id), &ref)
	switch {
	case err != nil:
		s.metrics.CacheLookup("error")
		s.logger.Warn().Err(err).Int64("referral_id", id).Msg("referral cache read failed")
		return nil, false
	case !ok:
		s.metrics.CacheLookup("miss")
		return nil, false
	}
	s.metrics.CacheLookup("hit")
	return &ref, true
}

func (s *Service) cachePut(ctx context.Context, ref *Referral) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, referralCacheKey(ref.ID), ref, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Int64("referral_id", ref.ID).Msg("referral cache write failed")
	}
}
