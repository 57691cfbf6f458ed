// Package registry handles candidate registration during an election's
// registration window.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/shared/cohort"
	"github.com/stake-plus/guildgov/src/shared/sanitize"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
)

const (
	maxSequence     = 99
	maxManifesto    = 1000
	registerRetries = 10
)

// Options tune a Registry.
type Options struct {
	MinActivityScore   int
	MinReputationScore int
	AutoApprove        bool
	Now                gov.Clock
}

// Registry registers and withdraws candidates.
type Registry struct {
	db       *gorm.DB
	profiles gov.ProfileStore
	opts     Options
}

func New(db *gorm.DB, profiles gov.ProfileStore, opts Options) *Registry {
	return &Registry{
		db:       db,
		profiles: profiles,
		opts:     opts,
	}
}

// WithTx returns a copy of the registry that reads and writes through tx.
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	c := *r
	c.db = tx
	return &c
}

// Register enrols userID in the election. The candidate code is the cohort
// numeral followed by a two-digit sequence one above the highest sequence
// currently registered in that cohort; codes are never renumbered.
func (r *Registry) Register(ctx context.Context, electionID uint64, userID, manifesto string) (*gov.Candidate, error) {
	election, err := records.Election(ctx, r.db, electionID)
	if err != nil {
		return nil, err
	}
	now := r.opts.Now.Now()
	if election.Status != gov.ElectionRegistration {
		return nil, gov.Validation(gov.ErrWrongPhase.Code, "candidate registration is not open (election is %s)", election.Status)
	}
	if now.After(election.RegistrationEndsAt) {
		return nil, gov.Validation(gov.ErrDeadlinePassed.Code, "candidate registration closed at %s", election.RegistrationEndsAt.UTC().Format("2006-01-02 15:04 MST"))
	}

	profile, err := r.profiles.GetProfile(ctx, election.GuildID, userID)
	if err != nil {
		return nil, err
	}
	if profile.ActivityScore < r.opts.MinActivityScore || profile.ReputationScore < r.opts.MinReputationScore {
		return nil, gov.Validation(gov.ErrIneligible.Code,
			"eligibility scores too low: activity %d (min %d), reputation %d (min %d)",
			profile.ActivityScore, r.opts.MinActivityScore, profile.ReputationScore, r.opts.MinReputationScore)
	}
	cohortID, err := cohort.Normalize(profile.Cohort)
	if err != nil {
		return nil, gov.Validation(gov.ErrBadCohort.Code, "cohort %q could not be resolved", profile.Cohort)
	}

	registered, err := r.IsCandidate(ctx, electionID, userID)
	if err != nil {
		return nil, err
	}
	if registered {
		return nil, gov.ErrAlreadyRegistered
	}

	candidate := gov.Candidate{
		ElectionID: electionID,
		UserID:     userID,
		Cohort:     cohortID,
		Manifesto:  sanitize.Text(manifesto, maxManifesto),
		Approved:   r.opts.AutoApprove,
		AppliedAt:  now,
	}

	for attempt := 0; attempt < registerRetries; attempt++ {
		seq, err := r.nextSequence(ctx, electionID, cohortID)
		if err != nil {
			return nil, err
		}
		if seq > maxSequence {
			return nil, gov.ErrCohortFull
		}
		candidate.ID = 0
		candidate.Sequence = seq
		candidate.Code = fmt.Sprintf("%s%02d", cohortID, seq)

		err = r.db.WithContext(ctx).Create(&candidate).Error
		if err == nil {
			log.Printf("registry: election %d: %s registered as %s", electionID, userID, candidate.Code)
			return &candidate, nil
		}
		if !data.IsUniqueViolation(err) {
			return nil, fmt.Errorf("register candidate: %w", err)
		}
		// either this user registered concurrently, or another candidate
		// took the sequence; only the latter is worth another attempt
		if registered, lookupErr := r.IsCandidate(ctx, electionID, userID); lookupErr == nil && registered {
			return nil, gov.ErrAlreadyRegistered
		}
	}
	return nil, gov.Conflict("sequence_contention", "could not allocate a candidate code, please retry")
}

// Withdraw removes userID's registration. Remaining codes keep their values.
func (r *Registry) Withdraw(ctx context.Context, electionID uint64, userID string) error {
	election, err := records.Election(ctx, r.db, electionID)
	if err != nil {
		return err
	}
	if election.Status != gov.ElectionRegistration {
		return gov.Validation(gov.ErrWrongPhase.Code, "candidacy can only be withdrawn during registration (election is %s)", election.Status)
	}

	res := r.db.WithContext(ctx).
		Where("election_id = ? AND user_id = ?", electionID, userID).
		Delete(&gov.Candidate{})
	if res.Error != nil {
		return fmt.Errorf("withdraw candidate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("candidate %s in election %d: %w", userID, electionID, gov.ErrNotFound)
	}
	log.Printf("registry: election %d: %s withdrew", electionID, userID)
	return nil
}

// SetApproval approves or rejects a candidate while registration is open.
func (r *Registry) SetApproval(ctx context.Context, electionID uint64, userID string, approved bool) error {
	election, err := records.Election(ctx, r.db, electionID)
	if err != nil {
		return err
	}
	if election.Status != gov.ElectionRegistration {
		return gov.Validation(gov.ErrWrongPhase.Code, "candidates can only be reviewed during registration (election is %s)", election.Status)
	}
	res := r.db.WithContext(ctx).Model(&gov.Candidate{}).
		Where("election_id = ? AND user_id = ?", electionID, userID).
		Update("approved", approved)
	if res.Error != nil {
		return fmt.Errorf("review candidate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("candidate %s in election %d: %w", userID, electionID, gov.ErrNotFound)
	}
	return nil
}

// List returns the election's candidates ordered by cohort then sequence.
func (r *Registry) List(ctx context.Context, electionID uint64, approvedOnly bool) ([]gov.Candidate, error) {
	q := r.db.WithContext(ctx).Where("election_id = ?", electionID)
	if approvedOnly {
		q = q.Where("approved = ?", true)
	}
	var out []gov.Candidate
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	SortCandidates(out)
	return out, nil
}

// FindByCode returns the approved candidate holding code, or ErrUnknownCandidate.
func (r *Registry) FindByCode(ctx context.Context, electionID uint64, code string) (*gov.Candidate, error) {
	var c gov.Candidate
	err := r.db.WithContext(ctx).
		Where("election_id = ? AND code = ? AND approved = ?", electionID, strings.TrimSpace(code), true).
		First(&c).Error
	if data.IsNotFound(err) {
		return nil, gov.ErrUnknownCandidate
	}
	if err != nil {
		return nil, fmt.Errorf("find candidate %s: %w", code, err)
	}
	return &c, nil
}

// IsCandidate reports whether userID is registered in the election.
func (r *Registry) IsCandidate(ctx context.Context, electionID uint64, userID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&gov.Candidate{}).
		Where("election_id = ? AND user_id = ?", electionID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("candidate lookup: %w", err)
	}
	return n > 0, nil
}

// CountApproved returns the number of approved candidates.
func (r *Registry) CountApproved(ctx context.Context, electionID uint64) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&gov.Candidate{}).
		Where("election_id = ? AND approved = ?", electionID, true).
		Count(&n).Error
	return int(n), err
}

func (r *Registry) nextSequence(ctx context.Context, electionID uint64, cohortID string) (int, error) {
	var highest sql.NullInt64
	row := r.db.WithContext(ctx).Model(&gov.Candidate{}).
		Select("MAX(sequence)").
		Where("election_id = ? AND cohort = ?", electionID, cohortID).
		Row()
	if err := row.Scan(&highest); err != nil {
		return 0, fmt.Errorf("candidate sequence: %w", err)
	}
	if !highest.Valid {
		return 1, nil
	}
	return int(highest.Int64) + 1, nil
}

// SortCandidates orders by numeric cohort, then sequence.
func SortCandidates(cs []gov.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Cohort != cs[j].Cohort {
			return cohortLess(cs[i].Cohort, cs[j].Cohort)
		}
		return cs[i].Sequence < cs[j].Sequence
	})
}

func cohortLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return na < nb
}
