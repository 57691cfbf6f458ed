// Package election drives an election through registration, voting and
// completion, and seats the per-cohort winners.
package election

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/governance/ledger"
	"github.com/stake-plus/guildgov/src/governance/notify"
	"github.com/stake-plus/guildgov/src/governance/power"
	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/governance/registry"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options tune a Manager.
type Options struct {
	RegistrationPeriod time.Duration
	VotingPeriod       time.Duration
	Announcer          *notify.Announcer
	Now                gov.Clock
}

// Manager owns election state transitions.
type Manager struct {
	db        *gorm.DB
	registry  *registry.Registry
	ledger    *ledger.Ledger
	executor  *power.Executor
	announcer *notify.Announcer
	opts      Options
}

func NewManager(db *gorm.DB, reg *registry.Registry, led *ledger.Ledger, exec *power.Executor, opts Options) *Manager {
	return &Manager{
		db:        db,
		registry:  reg,
		ledger:    led,
		executor:  exec,
		announcer: opts.Announcer,
		opts:      opts,
	}
}

// Result is the snapshot stored on a completed election.
type Result struct {
	ElectionID uint64         `json:"election_id"`
	Ballots    int            `json:"ballots"`
	Cohorts    []CohortResult `json:"cohorts"`
}

// CohortResult is one cohort's outcome.
type CohortResult struct {
	Cohort string             `json:"cohort"`
	Winner string             `json:"winner,omitempty"`
	Code   string             `json:"code,omitempty"`
	Votes  int                `json:"votes"`
	Seated bool               `json:"seated"`
	Note   string             `json:"note,omitempty"`
	Counts []ledger.CodeCount `json:"counts"`
}

// Initiate opens an election in the registration phase. An empty typ picks
// initial when the guild has no administrators and reelection otherwise.
func (m *Manager) Initiate(ctx context.Context, guildID string, typ gov.ElectionType) (*gov.Election, error) {
	existing, err := records.ActiveElection(ctx, m.db, guildID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, gov.Conflict(gov.ErrElectionActive.Code,
			"election #%d is already in %s", existing.ID, existing.Status)
	}

	if typ == "" {
		n, err := m.executor.CountActive(ctx, guildID)
		if err != nil {
			return nil, err
		}
		typ = gov.ElectionReelection
		if n == 0 {
			typ = gov.ElectionInitial
		}
	}

	now := m.opts.Now.Now()
	registrationEnds := now.Add(m.opts.RegistrationPeriod)
	e := gov.Election{
		GuildID:            guildID,
		Type:               typ,
		Status:             gov.ElectionRegistration,
		ActiveGuild:        &guildID,
		StartedAt:          now,
		RegistrationEndsAt: registrationEnds,
		VotingEndsAt:       registrationEnds.Add(m.opts.VotingPeriod),
	}
	if err := m.db.WithContext(ctx).Create(&e).Error; err != nil {
		if data.IsUniqueViolation(err) {
			return nil, gov.ErrElectionActive
		}
		return nil, fmt.Errorf("initiate election: %w", err)
	}

	log.Printf("election: guild %s: election #%d (%s) opened for registration until %s",
		guildID, e.ID, e.Type, e.RegistrationEndsAt.UTC().Format(time.RFC3339))
	m.announcer.Announce(ctx, guildID, notify.ElectionInitiated,
		fmt.Sprintf("Election #%d is open for candidate registration until %s. Use /register-candidacy to stand for your cohort.",
			e.ID, stamp(e.RegistrationEndsAt)),
		map[string]interface{}{"election": e.ID, "type": string(e.Type)})
	return &e, nil
}

// BeginVoting closes registration and opens the ballot.
func (m *Manager) BeginVoting(ctx context.Context, electionID uint64) (*gov.Election, error) {
	e, err := records.Election(ctx, m.db, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != gov.ElectionRegistration {
		return nil, gov.Validation(gov.ErrWrongPhase.Code, "election #%d is in %s, not candidate registration", e.ID, e.Status)
	}
	n, err := m.registry.CountApproved(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, gov.ErrNoCandidates
	}

	now := m.opts.Now.Now()
	registrationEnds := e.RegistrationEndsAt
	if now.Before(registrationEnds) {
		registrationEnds = now
	}
	votingEnds := now.Add(m.opts.VotingPeriod)

	res := m.db.WithContext(ctx).Model(&gov.Election{}).
		Where("id = ? AND status = ?", electionID, gov.ElectionRegistration).
		Updates(map[string]interface{}{
			"status":               gov.ElectionVoting,
			"registration_ends_at": registrationEnds,
			"voting_ends_at":       votingEnds,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("begin voting: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, gov.ErrWrongPhase
	}
	e.Status = gov.ElectionVoting
	e.RegistrationEndsAt = registrationEnds
	e.VotingEndsAt = votingEnds

	log.Printf("election: guild %s: election #%d voting with %d candidates until %s",
		e.GuildID, e.ID, n, votingEnds.UTC().Format(time.RFC3339))
	m.announcer.Announce(ctx, e.GuildID, notify.ElectionVoting,
		fmt.Sprintf("Voting for election #%d is open until %s. %d candidates are standing; use /cast-vote with a candidate code.",
			e.ID, stamp(votingEnds), n),
		map[string]interface{}{"election": e.ID, "candidates": n})
	return e, nil
}

// Finalize closes voting, tallies the ballot, seats every cohort's strict
// winner whose seat is free and stores the result. Tied cohorts seat nobody.
// Voting closes and the count is taken under the election row lock, so no
// ballot lands after the count.
func (m *Manager) Finalize(ctx context.Context, electionID uint64) (*Result, error) {
	now := m.opts.Now.Now()
	var e gov.Election
	var tally *ledger.Tally
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, electionID).Error; err != nil {
			if data.IsNotFound(err) {
				return fmt.Errorf("election #%d: %w", electionID, gov.ErrNotFound)
			}
			return err
		}
		if e.Status != gov.ElectionVoting {
			return gov.Validation(gov.ErrWrongPhase.Code, "election #%d is in %s, not voting", e.ID, e.Status)
		}
		t, err := m.ledger.WithTx(tx).Tally(ctx, electionID)
		if err != nil {
			return err
		}
		tally = t
		return tx.Model(&gov.Election{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
			"status":       gov.ElectionCompleted,
			"ended_at":     now,
			"active_guild": nil,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gov.ErrValidation) || errors.Is(err, gov.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("complete election #%d: %w", electionID, err)
	}

	result, seatErr := m.seatWinners(ctx, &e, tally)

	snapshot, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := m.db.WithContext(ctx).Model(&gov.Election{}).Where("id = ?", e.ID).
		Update("result", string(snapshot)).Error; err != nil {
		return nil, fmt.Errorf("store result of election #%d: %w", e.ID, err)
	}

	log.Printf("election: guild %s: election #%d completed, %d ballots over %d cohorts",
		e.GuildID, e.ID, result.Ballots, len(result.Cohorts))
	m.announcer.Announce(ctx, e.GuildID, notify.ElectionCompleted, summary(result),
		map[string]interface{}{"election": e.ID, "result": string(snapshot)})
	if seatErr != nil {
		return nil, fmt.Errorf("election #%d completed but not every winner was seated: %w", e.ID, seatErr)
	}
	return result, nil
}

// seatWinners appoints each cohort's winner. A winner already seated for
// another cohort keeps that seat and is not reported as seated here.
func (m *Manager) seatWinners(ctx context.Context, e *gov.Election, tally *ledger.Tally) (*Result, error) {
	result := &Result{ElectionID: e.ID, Ballots: tally.Ballots}
	admins, err := m.executor.ActiveAdministrators(ctx, e.GuildID)
	if err != nil {
		return result, err
	}
	seats := make(map[string]string, len(admins))
	for _, a := range admins {
		seats[a.Cohort] = a.UserID
	}

	var errs []error
	for _, ct := range tally.Cohorts {
		cr := CohortResult{Cohort: ct.Cohort, Counts: ct.Counts}
		winner, ok := ct.Winner()
		switch {
		case !ok && len(ct.Counts) > 0 && ct.Counts[0].Votes > 0:
			cr.Note = "tie"
		case !ok:
			cr.Note = "no ballots"
		default:
			cr.Winner, cr.Code, cr.Votes = winner.UserID, winner.Code, winner.Votes
			if holder, taken := seats[ct.Cohort]; taken && holder != winner.UserID {
				cr.Note = "seat held by " + holder
				break
			}
			electionRef := e.ID
			admin, created, err := m.executor.Appoint(ctx, e.GuildID, winner.UserID, ct.Cohort, &electionRef)
			switch {
			case err == nil && (created || admin.Cohort == ct.Cohort):
				cr.Seated = true
				seats[ct.Cohort] = winner.UserID
			case err == nil:
				cr.Note = "already seated for cohort " + admin.Cohort
			case errors.Is(err, gov.ErrConflict):
				log.Printf("election: guild %s: election #%d cohort %s winner %s not seated: %v",
					e.GuildID, e.ID, ct.Cohort, winner.UserID, err)
				cr.Note = err.Error()
			default:
				log.Printf("election: guild %s: election #%d cohort %s: appoint %s: %v",
					e.GuildID, e.ID, ct.Cohort, winner.UserID, err)
				cr.Note = "appointment failed"
				errs = append(errs, err)
			}
		}
		result.Cohorts = append(result.Cohorts, cr)
	}
	return result, errors.Join(errs...)
}

// Cancel ends a non-terminal election without seating anyone.
func (m *Manager) Cancel(ctx context.Context, electionID uint64, reason string) error {
	e, err := records.Election(ctx, m.db, electionID)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return gov.Validation(gov.ErrWrongPhase.Code, "election #%d is already %s", e.ID, e.Status)
	}

	res := m.db.WithContext(ctx).Model(&gov.Election{}).
		Where("id = ? AND status IN ?", electionID, gov.NonTerminalElectionStatuses).
		Updates(map[string]interface{}{
			"status":       gov.ElectionCancelled,
			"ended_at":     m.opts.Now.Now(),
			"result":       reason,
			"active_guild": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("cancel election: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gov.ErrWrongPhase
	}

	log.Printf("election: guild %s: election #%d cancelled: %s", e.GuildID, e.ID, reason)
	m.announcer.Announce(ctx, e.GuildID, notify.ElectionCancelled,
		fmt.Sprintf("Election #%d was cancelled: %s", e.ID, reason),
		map[string]interface{}{"election": e.ID, "reason": reason})
	return nil
}

// Status is a guild's current governance picture.
type Status struct {
	Election          *gov.Election
	Candidates        []gov.Candidate
	Ballots           int
	Administrators    int
	MaxAdministrators int
}

// Status reports the active election, or the most recent one when none is
// running. Election is nil for a guild that never held one.
func (m *Manager) Status(ctx context.Context, guildID string) (*Status, error) {
	st := &Status{MaxAdministrators: m.executor.MaxAdministrators()}
	n, err := m.executor.CountActive(ctx, guildID)
	if err != nil {
		return nil, err
	}
	st.Administrators = n

	e, err := records.ActiveElection(ctx, m.db, guildID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		e, err = records.LatestElection(ctx, m.db, guildID)
		if err != nil {
			return nil, err
		}
	}
	if e == nil {
		return st, nil
	}
	st.Election = e
	if st.Candidates, err = m.registry.List(ctx, e.ID, true); err != nil {
		return nil, err
	}
	var ballots int64
	if err := m.db.WithContext(ctx).Model(&gov.ElectionBallot{}).
		Where("election_id = ?", e.ID).Count(&ballots).Error; err != nil {
		return nil, err
	}
	st.Ballots = int(ballots)
	return st, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}

func summary(r *Result) string {
	msg := fmt.Sprintf("Election #%d is complete (%d ballots).", r.ElectionID, r.Ballots)
	for _, c := range r.Cohorts {
		switch {
		case c.Seated:
			msg += fmt.Sprintf("\nCohort %s: <@%s> (%s) with %d votes.", c.Cohort, c.Winner, c.Code, c.Votes)
		case c.Note != "":
			msg += fmt.Sprintf("\nCohort %s: no administrator seated (%s).", c.Cohort, c.Note)
		}
	}
	return msg
}
