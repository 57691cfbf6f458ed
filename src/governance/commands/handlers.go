package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stake-plus/guildgov/src/governance/ballot"
	"github.com/stake-plus/guildgov/src/governance/ledger"
	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/shared/gov"
)

var errNoElection = &gov.ValidationError{Code: "no_election", Message: "no election is running in this server"}

func (r *Router) activeElection(ctx context.Context, guildID string) (*gov.Election, error) {
	e, err := records.ActiveElection(ctx, r.svc.DB, guildID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errNoElection
	}
	return e, nil
}

func (r *Router) initiateElection(ctx context.Context, inv Invocation) (Reply, error) {
	e, err := r.svc.Elections.Initiate(ctx, inv.Guild, "")
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Title: fmt.Sprintf("Election #%d", e.ID),
		Text: fmt.Sprintf("Registration is open until %s.\nVoting closes %s.",
			stamp(e.RegistrationEndsAt), stamp(e.VotingEndsAt)),
	}, nil
}

func (r *Router) registerCandidacy(ctx context.Context, inv Invocation) (Reply, error) {
	e, err := r.activeElection(ctx, inv.Guild)
	if err != nil {
		return Reply{}, err
	}
	c, err := r.svc.Registry.Register(ctx, e.ID, inv.User, inv.opt(OptManifesto))
	if err != nil {
		return Reply{}, err
	}
	text := fmt.Sprintf("You are registered for cohort %s with candidate code **%s**.", c.Cohort, c.Code)
	if !c.Approved {
		text += " A moderator will review your candidacy."
	}
	return Reply{Text: text, Private: true}, nil
}

func (r *Router) withdrawCandidacy(ctx context.Context, inv Invocation) (Reply, error) {
	e, err := r.activeElection(ctx, inv.Guild)
	if err != nil {
		return Reply{}, err
	}
	if err := r.svc.Registry.Withdraw(ctx, e.ID, inv.User); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Your candidacy has been withdrawn.", Private: true}, nil
}

func (r *Router) listCandidates(ctx context.Context, inv Invocation) (Reply, error) {
	e, err := r.activeElection(ctx, inv.Guild)
	if err != nil {
		return Reply{}, err
	}
	cs, err := r.svc.Registry.List(ctx, e.ID, true)
	if err != nil {
		return Reply{}, err
	}
	if len(cs) == 0 {
		return Reply{Title: fmt.Sprintf("Election #%d candidates", e.ID), Text: "No approved candidates yet."}, nil
	}
	var b strings.Builder
	for _, c := range cs {
		fmt.Fprintf(&b, "%s  cohort %s  <@%s>", c.Code, c.Cohort, c.UserID)
		if c.Manifesto != "" {
			fmt.Fprintf(&b, "\n    %s", c.Manifesto)
		}
		b.WriteString("\n")
	}
	return Reply{Title: fmt.Sprintf("Election #%d candidates", e.ID), Text: b.String()}, nil
}

func (r *Router) castVote(ctx context.Context, inv Invocation) (Reply, error) {
	e, err := r.activeElection(ctx, inv.Guild)
	if err != nil {
		return Reply{}, err
	}
	b, err := r.svc.Ledger.Cast(ctx, e.ID, inv.User, inv.opt(OptCode), ledger.ParseVisibility(inv.opt(OptVisibility)))
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("Your %s ballot for %s is recorded.", b.Visibility, b.CandidateCode), Private: true}, nil
}

func (r *Router) beginVoting(ctx context.Context, inv Invocation) (Reply, error) {
	e, err := r.activeElection(ctx, inv.Guild)
	if err != nil {
		return Reply{}, err
	}
	e, err = r.svc.Elections.BeginVoting(ctx, e.ID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Title: fmt.Sprintf("Election #%d", e.ID), Text: "Voting is open until " + stamp(e.VotingEndsAt) + "."}, nil
}

func (r *Router) closeElection(ctx context.Context, inv Invocation) (Reply, error) {
	e, err := r.activeElection(ctx, inv.Guild)
	if err != nil {
		return Reply{}, err
	}
	if cancel, _ := strconv.ParseBool(inv.opt(OptCancel)); cancel {
		reason := inv.opt(OptReason)
		if reason == "" {
			reason = fmt.Sprintf("closed by <@%s>", inv.User)
		}
		if err := r.svc.Elections.Cancel(ctx, e.ID, reason); err != nil {
			return Reply{}, err
		}
		return Reply{Title: fmt.Sprintf("Election #%d", e.ID), Text: "Cancelled: " + reason}, nil
	}

	res, err := r.svc.Elections.Finalize(ctx, e.ID)
	if err != nil {
		return Reply{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d ballots counted.\n", res.Ballots)
	for _, c := range res.Cohorts {
		switch {
		case c.Seated:
			fmt.Fprintf(&b, "Cohort %s: <@%s> (%s) seated with %d votes\n", c.Cohort, c.Winner, c.Code, c.Votes)
		default:
			fmt.Fprintf(&b, "Cohort %s: nobody seated (%s)\n", c.Cohort, c.Note)
		}
	}
	return Reply{Title: fmt.Sprintf("Election #%d results", e.ID), Text: b.String()}, nil
}

// proceedingVote casts on whichever proceeding is ongoing against the named
// administrator. At most one can be.
func (r *Router) proceedingVote(support bool) handlerFunc {
	return func(ctx context.Context, inv Invocation) (Reply, error) {
		admin, err := adminOption(inv)
		if err != nil {
			return Reply{}, err
		}
		s, err := records.OngoingSession(ctx, r.svc.DB, inv.Guild, admin)
		if err != nil {
			return Reply{}, err
		}
		if s != nil {
			out, err := r.svc.Reelections.Vote(ctx, s.ID, inv.User, support)
			if err != nil {
				return Reply{}, err
			}
			return Reply{Text: describeSession(out.Session, out.Tally), Private: true}, nil
		}
		rec, err := records.OngoingImpeachment(ctx, r.svc.DB, inv.Guild, admin)
		if err != nil {
			return Reply{}, err
		}
		if rec != nil {
			out, err := r.svc.Impeachments.Vote(ctx, rec.ID, inv.User, support)
			if err != nil {
				return Reply{}, err
			}
			return Reply{Text: describeImpeachment(out.Record, out.Tally), Private: true}, nil
		}
		return Reply{}, gov.Validation(gov.ErrNotOngoing.Code, "nothing is open on <@%s> right now", admin)
	}
}

func (r *Router) reelectionTally(ctx context.Context, inv Invocation) (Reply, error) {
	admin, err := adminOption(inv)
	if err != nil {
		return Reply{}, err
	}
	s, err := r.svc.Reelections.Ongoing(ctx, inv.Guild, admin)
	if err != nil {
		return Reply{}, err
	}
	out, err := r.svc.Reelections.Tally(ctx, s.ID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Title: fmt.Sprintf("Reelection #%d", s.ID), Text: describeSession(out.Session, out.Tally)}, nil
}

func (r *Router) openReelection(ctx context.Context, inv Invocation) (Reply, error) {
	admin, err := adminOption(inv)
	if err != nil {
		return Reply{}, err
	}
	initiator := inv.User
	s, err := r.svc.Reelections.CreateSession(ctx, inv.Guild, admin, &initiator, false, inv.opt(OptReason))
	if err != nil {
		return Reply{}, err
	}
	return Reply{Title: fmt.Sprintf("Reelection #%d", s.ID), Text: describeSession(s, ballot.Tally{})}, nil
}

func (r *Router) openImpeachment(ctx context.Context, inv Invocation) (Reply, error) {
	admin, err := adminOption(inv)
	if err != nil {
		return Reply{}, err
	}
	rec, err := r.svc.Impeachments.Open(ctx, inv.Guild, admin, inv.User, inv.opt(OptReason))
	if err != nil {
		return Reply{}, err
	}
	return Reply{Title: fmt.Sprintf("Impeachment #%d", rec.ID), Text: describeImpeachment(rec, ballot.Tally{})}, nil
}

func (r *Router) cancelImpeachment(ctx context.Context, inv Invocation) (Reply, error) {
	admin, err := adminOption(inv)
	if err != nil {
		return Reply{}, err
	}
	rec, err := r.svc.Impeachments.Ongoing(ctx, inv.Guild, admin)
	if err != nil {
		return Reply{}, err
	}
	if _, err := r.svc.Impeachments.Cancel(ctx, rec.ID, inv.User, inv.Level >= LevelModerator); err != nil {
		return Reply{}, err
	}
	return Reply{Title: fmt.Sprintf("Impeachment #%d", rec.ID), Text: "Cancelled."}, nil
}

func (r *Router) impeachmentTally(ctx context.Context, inv Invocation) (Reply, error) {
	admin, err := adminOption(inv)
	if err != nil {
		return Reply{}, err
	}
	rec, err := r.svc.Impeachments.Ongoing(ctx, inv.Guild, admin)
	if err != nil {
		return Reply{}, err
	}
	out, err := r.svc.Impeachments.Tally(ctx, rec.ID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Title: fmt.Sprintf("Impeachment #%d", rec.ID), Text: describeImpeachment(out.Record, out.Tally)}, nil
}

func (r *Router) listAdministrators(ctx context.Context, inv Invocation) (Reply, error) {
	admins, err := r.svc.Executor.ActiveAdministrators(ctx, inv.Guild)
	if err != nil {
		return Reply{}, err
	}
	title := fmt.Sprintf("Administrators (%d/%d)", len(admins), r.svc.Executor.MaxAdministrators())
	if len(admins) == 0 {
		return Reply{Title: title, Text: "No administrators are seated."}, nil
	}
	var b strings.Builder
	for _, a := range admins {
		fmt.Fprintf(&b, "Cohort %s: <@%s> since %s\n", a.Cohort, a.UserID, stamp(a.AppointedAt))
	}
	return Reply{Title: title, Text: b.String()}, nil
}

func (r *Router) electionStatus(ctx context.Context, inv Invocation) (Reply, error) {
	st, err := r.svc.Elections.Status(ctx, inv.Guild)
	if err != nil {
		return Reply{}, err
	}
	if st.Election == nil {
		return Reply{Title: "Election status", Text: fmt.Sprintf("No election has been held. Administrators: %d/%d.",
			st.Administrators, st.MaxAdministrators)}, nil
	}
	e := st.Election
	var b strings.Builder
	fmt.Fprintf(&b, "Type: %s\nStatus: %s\n", e.Type, e.Status)
	switch e.Status {
	case gov.ElectionRegistration, gov.ElectionPreparation:
		fmt.Fprintf(&b, "Registration closes: %s\n", stamp(e.RegistrationEndsAt))
	case gov.ElectionVoting:
		fmt.Fprintf(&b, "Voting closes: %s\n", stamp(e.VotingEndsAt))
	default:
		if e.EndedAt != nil {
			fmt.Fprintf(&b, "Ended: %s\n", stamp(*e.EndedAt))
		}
	}
	fmt.Fprintf(&b, "Approved candidates: %d\nBallots: %d\nAdministrators: %d/%d",
		len(st.Candidates), st.Ballots, st.Administrators, st.MaxAdministrators)
	return Reply{Title: fmt.Sprintf("Election #%d", e.ID), Text: b.String()}, nil
}

func adminOption(inv Invocation) (string, error) {
	admin := strings.Trim(inv.opt(OptAdmin), "<@!>")
	if admin == "" {
		return "", gov.Validation("missing_option", "name the administrator with the %q option", OptAdmin)
	}
	return admin, nil
}

func describeSession(s *gov.ReelectionSession, t ballot.Tally) string {
	text := fmt.Sprintf("Reelection of <@%s>: %d keep, %d remove (%d of %d needed). Status: %s",
		s.AdminUserID, t.Support, t.Oppose, t.Total(), s.RequiredVotes, s.Status)
	if s.Outcome != gov.OutcomeNone {
		text += ", " + string(s.Outcome)
	}
	return text + "."
}

func describeImpeachment(rec *gov.ImpeachmentRecord, t ballot.Tally) string {
	text := fmt.Sprintf("Impeachment of <@%s>: %d keep, %d remove (%d of %d needed). Status: %s.",
		rec.AdminUserID, t.Support, t.Oppose, t.Total(), rec.RequiredVotes, rec.Status)
	if rec.Reason != "" {
		text += "\nReason: " + rec.Reason
	}
	return text
}

func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}
