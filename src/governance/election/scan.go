package election

import (
	"context"
	"errors"
	"log"

	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/shared/gov"
)

// Scan advances the guild's active election past any elapsed deadline. When
// nothing is running it opens a new election if the guild is below its
// administrator ceiling. Each pass makes at most one transition.
func (m *Manager) Scan(ctx context.Context, guildID string) error {
	e, err := records.ActiveElection(ctx, m.db, guildID)
	if err != nil {
		return err
	}
	if e != nil {
		return m.advance(ctx, e)
	}

	n, err := m.executor.CountActive(ctx, guildID)
	if err != nil {
		return err
	}
	if ceiling := m.executor.MaxAdministrators(); ceiling > 0 && n >= ceiling {
		return nil
	}
	if _, err := m.Initiate(ctx, guildID, ""); err != nil && !errors.Is(err, gov.ErrElectionActive) {
		return err
	}
	return nil
}

func (m *Manager) advance(ctx context.Context, e *gov.Election) error {
	now := m.opts.Now.Now()
	switch e.Status {
	case gov.ElectionPreparation, gov.ElectionRegistration:
		if now.Before(e.RegistrationEndsAt) {
			return nil
		}
		n, err := m.registry.CountApproved(ctx, e.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ignorePhase(m.Cancel(ctx, e.ID, "no approved candidates when registration closed"))
		}
		if e.Status == gov.ElectionPreparation {
			log.Printf("election: guild %s: election #%d still in preparation past its registration deadline", e.GuildID, e.ID)
			return nil
		}
		_, err = m.BeginVoting(ctx, e.ID)
		return ignorePhase(err)
	case gov.ElectionVoting:
		if now.Before(e.VotingEndsAt) {
			return nil
		}
		_, err := m.Finalize(ctx, e.ID)
		return ignorePhase(err)
	}
	return nil
}

// ignorePhase drops the wrong-phase rejection a concurrent transition causes.
func ignorePhase(err error) error {
	if errors.Is(err, gov.ErrWrongPhase) {
		return nil
	}
	return err
}
