package gov

import (
	"time"
)

// Setting represents a configuration setting stored in the database
type Setting struct {
	ID     uint16 `gorm:"primaryKey"`
	Name   string `gorm:"size:64;uniqueIndex;not null"`
	Value  string `gorm:"type:text;not null"`
	Active uint8  `gorm:"not null;default:1"`
}

// ElectionType distinguishes a guild's first election from refill rounds.
type ElectionType string

const (
	ElectionInitial    ElectionType = "initial"
	ElectionReelection ElectionType = "reelection"
)

// ElectionStatus is the lifecycle phase of an election.
type ElectionStatus string

const (
	ElectionPreparation  ElectionStatus = "preparation"
	ElectionRegistration ElectionStatus = "candidate_registration"
	ElectionVoting       ElectionStatus = "voting"
	ElectionCompleted    ElectionStatus = "completed"
	ElectionCancelled    ElectionStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s ElectionStatus) Terminal() bool {
	return s == ElectionCompleted || s == ElectionCancelled
}

// NonTerminalElectionStatuses lists the phases that count as "active".
var NonTerminalElectionStatuses = []ElectionStatus{
	ElectionPreparation,
	ElectionRegistration,
	ElectionVoting,
}

// Election is one registration/voting round for a guild. ActiveGuild carries
// the guild ID while the election is non-terminal and NULL afterwards; its
// unique index keeps a single active election per guild.
type Election struct {
	ID                 uint64         `gorm:"primaryKey;autoIncrement"`
	GuildID            string         `gorm:"size:64;index;not null"`
	Type               ElectionType   `gorm:"size:16;not null"`
	Status             ElectionStatus `gorm:"size:32;index;not null"`
	ActiveGuild        *string        `gorm:"size:64;uniqueIndex:idx_election_active_guild"`
	StartedAt          time.Time
	RegistrationEndsAt time.Time
	VotingEndsAt       time.Time
	EndedAt            *time.Time
	Result             string `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Candidate is one user's registration in an election.
type Candidate struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ElectionID uint64 `gorm:"not null;uniqueIndex:idx_candidate_election_user;uniqueIndex:idx_candidate_election_code;uniqueIndex:idx_candidate_election_seq"`
	UserID     string `gorm:"size:64;not null;uniqueIndex:idx_candidate_election_user"`
	Cohort     string `gorm:"size:8;not null;uniqueIndex:idx_candidate_election_seq"`
	Sequence   int    `gorm:"not null;uniqueIndex:idx_candidate_election_seq"`
	Code       string `gorm:"size:16;not null;uniqueIndex:idx_candidate_election_code"`
	Manifesto  string `gorm:"type:text"`
	Approved   bool   `gorm:"not null;default:false"`
	AppliedAt  time.Time
}

// BallotVisibility controls whether a ballot is announced.
type BallotVisibility string

const (
	BallotPublic  BallotVisibility = "public"
	BallotPrivate BallotVisibility = "private"
)

// ElectionBallot is one voter's choice in an election.
type ElectionBallot struct {
	ID            uint64           `gorm:"primaryKey;autoIncrement"`
	ElectionID    uint64           `gorm:"not null;uniqueIndex:idx_ballot_election_voter"`
	VoterID       string           `gorm:"size:64;not null;uniqueIndex:idx_ballot_election_voter"`
	CandidateCode string           `gorm:"size:16;not null;index"`
	Visibility    BallotVisibility `gorm:"size:16;not null"`
	CastAt        time.Time
}

// Administrator is a governance-granted seat. Rows are deactivated, never
// deleted. SeatKey (guild:cohort) and MemberKey (guild:user) are set only
// while Active so their unique indexes hold for active rows alone.
type Administrator struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement"`
	GuildID     string  `gorm:"size:64;not null;index:idx_admin_guild_active"`
	UserID      string  `gorm:"size:64;not null;index"`
	Cohort      string  `gorm:"size:8;not null"`
	ElectionID  *uint64 `gorm:"index"`
	AppointedAt time.Time
	TermEndsAt  *time.Time
	Active      bool    `gorm:"not null;index:idx_admin_guild_active"`
	SeatKey     *string `gorm:"size:80;uniqueIndex:idx_admin_seat"`
	MemberKey   *string `gorm:"size:140;uniqueIndex:idx_admin_member"`
}

// SessionStatus is the lifecycle of a reelection session.
type SessionStatus string

const (
	SessionOngoing   SessionStatus = "ongoing"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// SessionOutcome records how a completed session resolved.
type SessionOutcome string

const (
	OutcomeNone      SessionOutcome = ""
	OutcomeReelected SessionOutcome = "reelected"
	OutcomeRemoved   SessionOutcome = "removed"
	OutcomeExpired   SessionOutcome = "expired"
)

// ReelectionSession is a referendum on a sitting administrator's tenure.
type ReelectionSession struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement"`
	GuildID       string         `gorm:"size:64;not null;index:idx_session_guild_admin"`
	AdminUserID   string         `gorm:"size:64;not null;index:idx_session_guild_admin"`
	InitiatorID   *string        `gorm:"size:64"`
	AutoTriggered bool           `gorm:"not null;default:false"`
	Status        SessionStatus  `gorm:"size:16;not null;index"`
	Outcome       SessionOutcome `gorm:"size:16"`
	RequiredVotes int            `gorm:"not null"`
	Reason        string         `gorm:"type:text"`
	StartedAt     time.Time
	EndedAt       *time.Time
	OngoingKey    *string `gorm:"size:140;uniqueIndex:idx_session_ongoing"`
}

// ImpeachmentStatus is the lifecycle of an impeachment record.
type ImpeachmentStatus string

const (
	ImpeachmentOngoing   ImpeachmentStatus = "ongoing"
	ImpeachmentSuccess   ImpeachmentStatus = "success"
	ImpeachmentFailed    ImpeachmentStatus = "failed"
	ImpeachmentCancelled ImpeachmentStatus = "cancelled"
)

// ImpeachmentRecord is a member-initiated removal proceeding.
type ImpeachmentRecord struct {
	ID            uint64            `gorm:"primaryKey;autoIncrement"`
	GuildID       string            `gorm:"size:64;not null;index:idx_impeach_guild_admin"`
	AdminUserID   string            `gorm:"size:64;not null;index:idx_impeach_guild_admin"`
	InitiatorID   string            `gorm:"size:64;not null;index"`
	Status        ImpeachmentStatus `gorm:"size:16;not null;index"`
	RequiredVotes int               `gorm:"not null"`
	SupportVotes  int               `gorm:"not null;default:0"`
	OpposeVotes   int               `gorm:"not null;default:0"`
	TotalVotes    int               `gorm:"not null;default:0"`
	Reason        string            `gorm:"type:text"`
	InitiatedAt   time.Time         `gorm:"index"`
	EndedAt       *time.Time
	OngoingKey    *string `gorm:"size:140;uniqueIndex:idx_impeach_ongoing"`
}

// ProceedingKind names the proceeding a ProceedingBallot belongs to.
type ProceedingKind string

const (
	KindReelection  ProceedingKind = "reelection"
	KindImpeachment ProceedingKind = "impeachment"
)

// ProceedingBallot is a support/oppose ballot in a reelection session or an
// impeachment record. Support means the voter wants the administrator kept.
type ProceedingBallot struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement"`
	Kind         ProceedingKind `gorm:"size:16;not null;uniqueIndex:idx_pballot_voter"`
	ProceedingID uint64         `gorm:"not null;uniqueIndex:idx_pballot_voter"`
	VoterID      string         `gorm:"size:64;not null;uniqueIndex:idx_pballot_voter"`
	GuildID      string         `gorm:"size:64;not null;index:idx_pballot_admin"`
	AdminUserID  string         `gorm:"size:64;not null;index:idx_pballot_admin"`
	Support      bool           `gorm:"not null"`
	CastAt       time.Time
}

// MemberProfile is the read-only profile row maintained by the profile
// subsystem. Cohort holds the raw label as entered by the member.
type MemberProfile struct {
	UserID          string `gorm:"primaryKey;size:64"`
	GuildID         string `gorm:"primaryKey;size:64"`
	Cohort          string `gorm:"size:32"`
	ActivityScore   int
	ReputationScore int
	UpdatedAt       time.Time
}

// Models lists every table owned by the engine, in migration order.
var Models = []interface{}{
	&Setting{},
	&Election{},
	&Candidate{},
	&ElectionBallot{},
	&Administrator{},
	&ReelectionSession{},
	&ImpeachmentRecord{},
	&ProceedingBallot{},
	&MemberProfile{},
}

// Key joins a guild and a member/cohort into a uniqueness key.
func Key(guildID, id string) *string {
	k := guildID + ":" + id
	return &k
}
