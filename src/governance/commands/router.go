// Package commands maps chat commands onto the governance engines. It knows
// nothing about the chat transport.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/stake-plus/guildgov/src/governance"
	"github.com/stake-plus/guildgov/src/shared/gov"
)

// Level is the invoker's privilege tier.
type Level int

const (
	LevelMember Level = iota
	LevelTrusted
	LevelModerator
	LevelOwner
)

func (l Level) String() string {
	switch l {
	case LevelTrusted:
		return "trusted"
	case LevelModerator:
		return "moderator"
	case LevelOwner:
		return "owner"
	}
	return "member"
}

// Command names.
const (
	InitiateElection   = "initiate-election"
	RegisterCandidacy  = "register-candidacy"
	WithdrawCandidacy  = "withdraw-candidacy"
	ListCandidates     = "list-candidates"
	CastVote           = "cast-vote"
	BeginVotingPhase   = "begin-voting-phase"
	CloseElection      = "close-election"
	SupportReelection  = "support-reelection"
	OpposeReelection   = "oppose-reelection"
	ReelectionTally    = "reelection-tally"
	OpenReelection     = "open-reelection"
	OpenImpeachment    = "open-impeachment"
	CancelImpeachment  = "cancel-impeachment"
	ImpeachmentTally   = "impeachment-tally"
	ListAdministrators = "list-administrators"
	ElectionStatus     = "election-status"
)

// Option names.
const (
	OptManifesto  = "manifesto"
	OptCode       = "code"
	OptVisibility = "visibility"
	OptAdmin      = "admin"
	OptReason     = "reason"
	OptCancel     = "cancel"
)

// Invocation is one parsed command.
type Invocation struct {
	Guild   string
	User    string
	Level   Level
	Name    string
	Options map[string]string
}

func (inv Invocation) opt(name string) string {
	return strings.TrimSpace(inv.Options[name])
}

// Reply is what the transport shows the invoker. Private replies are only
// visible to them.
type Reply struct {
	Title   string
	Text    string
	Private bool
}

type handlerFunc func(ctx context.Context, inv Invocation) (Reply, error)

type route struct {
	level   Level
	handler handlerFunc
}

// Router dispatches invocations to handlers after checking the tier.
type Router struct {
	svc    *governance.Service
	routes map[string]route
}

func NewRouter(svc *governance.Service) *Router {
	r := &Router{svc: svc}
	r.routes = map[string]route{
		InitiateElection:   {LevelOwner, r.initiateElection},
		RegisterCandidacy:  {LevelMember, r.registerCandidacy},
		WithdrawCandidacy:  {LevelMember, r.withdrawCandidacy},
		ListCandidates:     {LevelMember, r.listCandidates},
		CastVote:           {LevelMember, r.castVote},
		BeginVotingPhase:   {LevelModerator, r.beginVoting},
		CloseElection:      {LevelModerator, r.closeElection},
		SupportReelection:  {LevelMember, r.proceedingVote(true)},
		OpposeReelection:   {LevelMember, r.proceedingVote(false)},
		ReelectionTally:    {LevelMember, r.reelectionTally},
		OpenReelection:     {LevelModerator, r.openReelection},
		OpenImpeachment:    {LevelTrusted, r.openImpeachment},
		CancelImpeachment:  {LevelMember, r.cancelImpeachment},
		ImpeachmentTally:   {LevelMember, r.impeachmentTally},
		ListAdministrators: {LevelMember, r.listAdministrators},
		ElectionStatus:     {LevelMember, r.electionStatus},
	}
	return r
}

// Names lists every routed command, sorted.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.routes))
	for n := range r.routes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Required returns the tier a command needs.
func (r *Router) Required(name string) (Level, bool) {
	rt, ok := r.routes[name]
	return rt.level, ok
}

// Dispatch runs the invocation. User-facing governance rejections become a
// private reply; anything else is returned as an error and should be logged
// by the transport.
func (r *Router) Dispatch(ctx context.Context, inv Invocation) (Reply, error) {
	rt, ok := r.routes[inv.Name]
	if !ok {
		return Reply{}, fmt.Errorf("unknown command %q", inv.Name)
	}
	if inv.Level < rt.level {
		return Reply{Text: fmt.Sprintf("/%s needs %s privileges.", inv.Name, rt.level), Private: true}, nil
	}

	reply, err := rt.handler(ctx, inv)
	if err == nil {
		return reply, nil
	}
	if gov.IsUserFacing(err) {
		return Reply{Text: userMessage(err), Private: true}, nil
	}
	log.Printf("commands: guild %s: /%s by %s: %v", inv.Guild, inv.Name, inv.User, err)
	return Reply{}, err
}

func userMessage(err error) string {
	var v *gov.ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	var c *gov.ConflictError
	if errors.As(err, &c) {
		return c.Message
	}
	return err.Error()
}
