package config

import (
	"time"

	"gorm.io/gorm"
)

// GovernanceConfig holds every tunable of the election, reelection and
// impeachment engines.
type GovernanceConfig struct {
	Base

	RegistrationPeriod time.Duration
	VotingPeriod       time.Duration
	MinActivityScore   int
	MinReputationScore int
	MaxAdministrators  int
	AutoApprove        bool

	ReelectionQuorum    int
	ReelectionMinTenure time.Duration
	ReelectionMaxAge    time.Duration

	ImpeachMinTenure     time.Duration
	ImpeachCooldown      time.Duration
	ImpeachRateLimit     int
	ImpeachRateWindow    time.Duration
	ImpeachQuorumPercent int
	ImpeachQuorumMin     int
	ImpeachQuorumMax     int
	ImpeachMaxAge        time.Duration

	ScanInterval time.Duration

	AdminRoleID         string
	TrustedRoleID       string
	ModeratorRoleID     string
	AnnounceChannelID   string
	AdminListPageSize   int
	MemberCountCacheTTL time.Duration
	Enabled             bool
}

// LoadGovernanceConfig loads governance configuration
func LoadGovernanceConfig(db *gorm.DB) GovernanceConfig {
	base := LoadBase(db)

	return GovernanceConfig{
		Base: base,

		RegistrationPeriod: getDurationSetting("election_registration_period", "ELECTION_REGISTRATION_PERIOD", 72*time.Hour),
		VotingPeriod:       getDurationSetting("election_voting_period", "ELECTION_VOTING_PERIOD", 48*time.Hour),
		MinActivityScore:   getIntSetting("candidate_min_activity", "CANDIDATE_MIN_ACTIVITY", 60),
		MinReputationScore: getIntSetting("candidate_min_reputation", "CANDIDATE_MIN_REPUTATION", 60),
		MaxAdministrators:  getIntSetting("max_administrators", "MAX_ADMINISTRATORS", 5),
		AutoApprove:        getBoolSetting("candidate_auto_approve", "CANDIDATE_AUTO_APPROVE", true),

		ReelectionQuorum:    getIntSetting("reelection_quorum", "REELECTION_QUORUM", 3),
		ReelectionMinTenure: getDurationSetting("reelection_min_tenure", "REELECTION_MIN_TENURE", 30*24*time.Hour),
		ReelectionMaxAge:    getDurationSetting("reelection_max_age", "REELECTION_MAX_AGE", 72*time.Hour),

		ImpeachMinTenure:     getDurationSetting("impeach_min_tenure", "IMPEACH_MIN_TENURE", 7*24*time.Hour),
		ImpeachCooldown:      getDurationSetting("impeach_cooldown", "IMPEACH_COOLDOWN", 7*24*time.Hour),
		ImpeachRateLimit:     getIntSetting("impeach_rate_limit", "IMPEACH_RATE_LIMIT", 2),
		ImpeachRateWindow:    getDurationSetting("impeach_rate_window", "IMPEACH_RATE_WINDOW", 24*time.Hour),
		ImpeachQuorumPercent: getIntSetting("impeach_quorum_percent", "IMPEACH_QUORUM_PERCENT", 10),
		ImpeachQuorumMin:     getIntSetting("impeach_quorum_min", "IMPEACH_QUORUM_MIN", 5),
		ImpeachQuorumMax:     getIntSetting("impeach_quorum_max", "IMPEACH_QUORUM_MAX", 30),
		ImpeachMaxAge:        getDurationSetting("impeach_max_age", "IMPEACH_MAX_AGE", 72*time.Hour),

		ScanInterval: getDurationSetting("scan_interval", "SCAN_INTERVAL", time.Hour),

		AdminRoleID:         GetSetting("admin_role_id", "ADMIN_ROLE_ID", ""),
		TrustedRoleID:       GetSetting("trusted_role_id", "TRUSTED_ROLE_ID", ""),
		ModeratorRoleID:     GetSetting("moderator_role_id", "MODERATOR_ROLE_ID", ""),
		AnnounceChannelID:   GetSetting("announce_channel_id", "ANNOUNCE_CHANNEL_ID", ""),
		AdminListPageSize:   getIntSetting("admin_list_page_size", "ADMIN_LIST_PAGE_SIZE", 1000),
		MemberCountCacheTTL: getDurationSetting("member_count_ttl", "MEMBER_COUNT_TTL", 5*time.Minute),
		Enabled:             getBoolSetting("enable_governance", "ENABLE_GOVERNANCE", true),
	}
}

// APIConfig holds the HTTP API configuration
type APIConfig struct {
	Port           string
	JWTSecret      string
	AllowedOrigins []string
	// GuildIDs are the guilds operators may trigger scans for.
	GuildIDs []string
	Enabled  bool
}

// LoadAPIConfig loads HTTP API configuration. Call after LoadBase so the
// settings cache is warm.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Port:           GetSetting("api_port", "PORT", "8080"),
		JWTSecret:      GetSetting("jwt_secret", "JWT_SECRET", ""),
		AllowedOrigins: splitList(GetSetting("api_allowed_origins", "API_ALLOWED_ORIGINS", "http://localhost:3000")),
		GuildIDs:       guildIDs(),
		Enabled:        getBoolSetting("enable_api", "ENABLE_API", false),
	}
}
