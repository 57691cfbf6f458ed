package webserver

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/guildgov/src/governance"
	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/shared/gov"
)

type Governance struct {
	svc    *governance.Service
	runner *governance.Runner
	guilds map[string]bool
}

func NewGovernance(svc *governance.Service, runner *governance.Runner, guildIDs []string) Governance {
	guilds := make(map[string]bool, len(guildIDs))
	for _, id := range guildIDs {
		guilds[id] = true
	}
	return Governance{svc: svc, runner: runner, guilds: guilds}
}

// Election reports the guild's active or most recent election.
func (g Governance) Election(c *gin.Context) {
	st, err := g.svc.Elections.Status(c.Request.Context(), c.Param("guild"))
	if err != nil {
		fail(c, err)
		return
	}
	body := gin.H{
		"election":          nil,
		"ballots":           st.Ballots,
		"administrators":    st.Administrators,
		"maxAdministrators": st.MaxAdministrators,
		"candidates":        candidateViews(st.Candidates),
	}
	if st.Election != nil {
		body["election"] = electionView(st.Election)
	}
	c.JSON(http.StatusOK, body)
}

func (g Governance) Candidates(c *gin.Context) {
	e, ok := g.guildElection(c)
	if !ok {
		return
	}
	cs, err := g.svc.Registry.List(c.Request.Context(), e.ID, c.Query("approved") == "true")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"electionId": e.ID, "candidates": candidateViews(cs)})
}

func (g Governance) Administrators(c *gin.Context) {
	admins, err := g.svc.Executor.ActiveAdministrators(c.Request.Context(), c.Param("guild"))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(admins))
	for _, a := range admins {
		out = append(out, gin.H{
			"userId":      a.UserID,
			"cohort":      a.Cohort,
			"electionId":  a.ElectionID,
			"appointedAt": a.AppointedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"administrators": out, "max": g.svc.Executor.MaxAdministrators()})
}

func (g Governance) Reelection(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	out, err := g.svc.Reelections.Tally(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	s := out.Session
	if s.GuildID != c.Param("guild") {
		c.JSON(http.StatusNotFound, gin.H{"err": "reelection session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            s.ID,
		"adminUserId":   s.AdminUserID,
		"autoTriggered": s.AutoTriggered,
		"status":        s.Status,
		"outcome":       s.Outcome,
		"requiredVotes": s.RequiredVotes,
		"support":       out.Tally.Support,
		"oppose":        out.Tally.Oppose,
		"reason":        s.Reason,
		"startedAt":     s.StartedAt,
		"endedAt":       s.EndedAt,
	})
}

func (g Governance) Impeachment(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	out, err := g.svc.Impeachments.Tally(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	r := out.Record
	if r.GuildID != c.Param("guild") {
		c.JSON(http.StatusNotFound, gin.H{"err": "impeachment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            r.ID,
		"adminUserId":   r.AdminUserID,
		"initiatorId":   r.InitiatorID,
		"status":        r.Status,
		"requiredVotes": r.RequiredVotes,
		"support":       out.Tally.Support,
		"oppose":        out.Tally.Oppose,
		"reason":        r.Reason,
		"initiatedAt":   r.InitiatedAt,
		"endedAt":       r.EndedAt,
	})
}

// SetApproval approves or rejects a candidate during registration.
func (g Governance) SetApproval(c *gin.Context) {
	var req struct {
		Approved *bool `json:"approved" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	e, ok := g.guildElection(c)
	if !ok {
		return
	}
	if err := g.svc.Registry.SetApproval(c.Request.Context(), e.ID, c.Param("user"), *req.Approved); err != nil {
		fail(c, err)
		return
	}
	log.Printf("api: %s set approval of %s in election %d to %t", c.GetString("operator"), c.Param("user"), e.ID, *req.Approved)
	c.Status(http.StatusNoContent)
}

// Scan runs one scan, or all of them, for the guild.
func (g Governance) Scan(c *gin.Context) {
	var req struct {
		Scan string `json:"scan" binding:"omitempty,oneof=election reelection expiry reconcile"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
			return
		}
	}

	guildID := c.Param("guild")
	if !g.guilds[guildID] {
		c.JSON(http.StatusNotFound, gin.H{"err": "guild is not configured"})
		return
	}
	guilds := []string{guildID}
	var err error
	if req.Scan == "" {
		err = g.runner.RunAll(c.Request.Context(), guilds)
	} else {
		err = g.runner.Run(c.Request.Context(), req.Scan, guilds)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (g Governance) guildElection(c *gin.Context) (*gov.Election, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	e, err := records.Election(c.Request.Context(), g.svc.DB, id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if e.GuildID != c.Param("guild") {
		c.JSON(http.StatusNotFound, gin.H{"err": "election not found"})
		return nil, false
	}
	return e, true
}

func paramID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad id"})
		return 0, false
	}
	return id, true
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gov.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"err": err.Error()})
	case errors.Is(err, gov.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
	case errors.Is(err, gov.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"err": err.Error()})
	default:
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
	}
}

func electionView(e *gov.Election) gin.H {
	return gin.H{
		"id":                 e.ID,
		"type":               e.Type,
		"status":             e.Status,
		"startedAt":          e.StartedAt,
		"registrationEndsAt": e.RegistrationEndsAt,
		"votingEndsAt":       e.VotingEndsAt,
		"endedAt":            e.EndedAt,
		"result":             e.Result,
	}
}

func candidateViews(cs []gov.Candidate) []gin.H {
	out := make([]gin.H, 0, len(cs))
	for _, cand := range cs {
		out = append(out, gin.H{
			"userId":    cand.UserID,
			"cohort":    cand.Cohort,
			"code":      cand.Code,
			"manifesto": cand.Manifesto,
			"approved":  cand.Approved,
		})
	}
	return out
}
