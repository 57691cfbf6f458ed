// Package ledger records election ballots, one per voter, and tallies them
// per cohort.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/governance/notify"
	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/governance/registry"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options tune a Ledger.
type Options struct {
	Announcer *notify.Announcer
	Now       gov.Clock
}

// Ledger stores election ballots.
type Ledger struct {
	db        *gorm.DB
	profiles  gov.ProfileStore
	registry  *registry.Registry
	announcer *notify.Announcer
	now       gov.Clock
}

func New(db *gorm.DB, profiles gov.ProfileStore, reg *registry.Registry, opts Options) *Ledger {
	return &Ledger{
		db:        db,
		profiles:  profiles,
		registry:  reg,
		announcer: opts.Announcer,
		now:       opts.Now,
	}
}

// WithTx returns a copy of the ledger that reads and writes through tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	c := *l
	c.db = tx
	c.registry = l.registry.WithTx(tx)
	return &c
}

// ParseVisibility maps user input to a visibility, defaulting to private.
func ParseVisibility(s string) gov.BallotVisibility {
	if strings.EqualFold(strings.TrimSpace(s), string(gov.BallotPublic)) {
		return gov.BallotPublic
	}
	return gov.BallotPrivate
}

// Cast records voterID's ballot for the candidate holding code.
func (l *Ledger) Cast(ctx context.Context, electionID uint64, voterID, code string, visibility gov.BallotVisibility) (*gov.ElectionBallot, error) {
	election, err := records.Election(ctx, l.db, electionID)
	if err != nil {
		return nil, err
	}
	now := l.now.Now()
	if election.Status != gov.ElectionVoting {
		return nil, gov.Validation(gov.ErrWrongPhase.Code, "voting is not open (election is %s)", election.Status)
	}
	if now.After(election.VotingEndsAt) {
		return nil, gov.Validation(gov.ErrDeadlinePassed.Code, "voting closed at %s", election.VotingEndsAt.UTC().Format("2006-01-02 15:04 MST"))
	}

	candidate, err := l.registry.FindByCode(ctx, electionID, code)
	if err != nil {
		return nil, err
	}
	if _, err := l.profiles.GetProfile(ctx, election.GuildID, voterID); err != nil {
		return nil, err
	}
	isCandidate, err := l.registry.IsCandidate(ctx, electionID, voterID)
	if err != nil {
		return nil, err
	}
	if isCandidate {
		return nil, gov.ErrCandidateVoter
	}

	if visibility != gov.BallotPublic {
		visibility = gov.BallotPrivate
	}
	b := gov.ElectionBallot{
		ElectionID:    electionID,
		VoterID:       voterID,
		CandidateCode: candidate.Code,
		Visibility:    visibility,
		CastAt:        now,
	}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur gov.Election
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, electionID).Error; err != nil {
			return err
		}
		if cur.Status != gov.ElectionVoting {
			return gov.Validation(gov.ErrWrongPhase.Code, "voting is not open (election is %s)", cur.Status)
		}
		if now.After(cur.VotingEndsAt) {
			return gov.Validation(gov.ErrDeadlinePassed.Code, "voting closed at %s", cur.VotingEndsAt.UTC().Format("2006-01-02 15:04 MST"))
		}
		return tx.Create(&b).Error
	})
	if err != nil {
		if data.IsUniqueViolation(err) {
			return nil, gov.ErrAlreadyVoted
		}
		if errors.Is(err, gov.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("cast ballot: %w", err)
	}

	log.Printf("ledger: election %d: ballot recorded (%s)", electionID, visibility)
	if visibility == gov.BallotPublic {
		l.announcer.Announce(ctx, election.GuildID, notify.BallotCast,
			fmt.Sprintf("<@%s> voted for candidate %s (<@%s>).", voterID, candidate.Code, candidate.UserID),
			map[string]interface{}{"election": electionID, "code": candidate.Code})
	}
	return &b, nil
}

// HasVoted reports whether voterID has a ballot in the election.
func (l *Ledger) HasVoted(ctx context.Context, electionID uint64, voterID string) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&gov.ElectionBallot{}).
		Where("election_id = ? AND voter_id = ?", electionID, voterID).
		Count(&n).Error
	return n > 0, err
}

// CodeCount is one candidate's ballot count.
type CodeCount struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
	Votes  int    `json:"votes"`
}

// CohortTally is the count for one cohort, highest first.
type CohortTally struct {
	Cohort string
	Counts []CodeCount
}

// Winner returns the candidate with strictly the most ballots. A tie at the
// top, or a cohort with no ballots, has no winner.
func (c CohortTally) Winner() (CodeCount, bool) {
	if len(c.Counts) == 0 || c.Counts[0].Votes == 0 {
		return CodeCount{}, false
	}
	if len(c.Counts) > 1 && c.Counts[1].Votes == c.Counts[0].Votes {
		return CodeCount{}, false
	}
	return c.Counts[0], true
}

// Tally is an election's ballot count grouped by cohort.
type Tally struct {
	ElectionID uint64
	Ballots    int
	Cohorts    []CohortTally
}

// Tally counts ballots per approved candidate, grouped by cohort. Every
// approved candidate appears, with zero if nobody voted for them.
func (l *Ledger) Tally(ctx context.Context, electionID uint64) (*Tally, error) {
	candidates, err := l.registry.List(ctx, electionID, true)
	if err != nil {
		return nil, err
	}

	type agg struct {
		CandidateCode string
		Count         int
	}
	var rows []agg
	if err := l.db.WithContext(ctx).Model(&gov.ElectionBallot{}).
		Select("candidate_code, count(*) as count").
		Where("election_id = ?", electionID).
		Group("candidate_code").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("tally election %d: %w", electionID, err)
	}
	votes := make(map[string]int, len(rows))
	for _, r := range rows {
		votes[r.CandidateCode] = r.Count
	}

	t := &Tally{ElectionID: electionID}
	index := map[string]int{}
	for _, c := range candidates {
		i, ok := index[c.Cohort]
		if !ok {
			i = len(t.Cohorts)
			index[c.Cohort] = i
			t.Cohorts = append(t.Cohorts, CohortTally{Cohort: c.Cohort})
		}
		n := votes[c.Code]
		t.Ballots += n
		t.Cohorts[i].Counts = append(t.Cohorts[i].Counts, CodeCount{Code: c.Code, UserID: c.UserID, Votes: n})
	}
	for i := range t.Cohorts {
		counts := t.Cohorts[i].Counts
		sort.SliceStable(counts, func(a, b int) bool { return counts[a].Votes > counts[b].Votes })
	}
	return t, nil
}
