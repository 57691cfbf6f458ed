// Package governance wires the election, reelection and impeachment engines
// into one service and runs their periodic scans.
package governance

import (
	"github.com/stake-plus/guildgov/src/config"
	"github.com/stake-plus/guildgov/src/governance/election"
	"github.com/stake-plus/guildgov/src/governance/impeachment"
	"github.com/stake-plus/guildgov/src/governance/ledger"
	"github.com/stake-plus/guildgov/src/governance/notify"
	"github.com/stake-plus/guildgov/src/governance/power"
	"github.com/stake-plus/guildgov/src/governance/reelection"
	"github.com/stake-plus/guildgov/src/governance/registry"
	"github.com/stake-plus/guildgov/src/metrics"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
)

// Deps are the collaborators a Service is built on. Notifier, Events and
// Metrics may be nil.
type Deps struct {
	DB       *gorm.DB
	Profiles gov.ProfileStore
	Gateway  gov.PrivilegeGateway
	Notifier gov.Notifier
	Events   notify.EventSink
	Metrics  *metrics.Metrics
	Now      gov.Clock
}

// Service holds every governance engine for a deployment.
type Service struct {
	Config       config.GovernanceConfig
	DB           *gorm.DB
	Announcer    *notify.Announcer
	Executor     *power.Executor
	Registry     *registry.Registry
	Ledger       *ledger.Ledger
	Elections    *election.Manager
	Reelections  *reelection.Engine
	Impeachments *impeachment.Engine
	Metrics      *metrics.Metrics
}

func NewService(cfg config.GovernanceConfig, deps Deps) *Service {
	ann := &notify.Announcer{Notifier: deps.Notifier, Events: deps.Events, Metrics: deps.Metrics}
	exec := power.NewExecutor(deps.DB, deps.Gateway, power.Options{
		MaxAdministrators: cfg.MaxAdministrators,
		Announcer:         ann,
		Now:               deps.Now,
	})
	reg := registry.New(deps.DB, deps.Profiles, registry.Options{
		MinActivityScore:   cfg.MinActivityScore,
		MinReputationScore: cfg.MinReputationScore,
		AutoApprove:        cfg.AutoApprove,
		Now:                deps.Now,
	})
	led := ledger.New(deps.DB, deps.Profiles, reg, ledger.Options{Announcer: ann, Now: deps.Now})

	return &Service{
		Config:    cfg,
		DB:        deps.DB,
		Metrics:   deps.Metrics,
		Announcer: ann,
		Executor:  exec,
		Registry:  reg,
		Ledger:    led,
		Elections: election.NewManager(deps.DB, reg, led, exec, election.Options{
			RegistrationPeriod: cfg.RegistrationPeriod,
			VotingPeriod:       cfg.VotingPeriod,
			Announcer:          ann,
			Now:                deps.Now,
		}),
		Reelections: reelection.New(deps.DB, deps.Profiles, exec, reelection.Options{
			Quorum:    cfg.ReelectionQuorum,
			MinTenure: cfg.ReelectionMinTenure,
			MaxAge:    cfg.ReelectionMaxAge,
			Announcer: ann,
			Now:       deps.Now,
		}),
		Impeachments: impeachment.New(deps.DB, deps.Profiles, deps.Gateway, exec, impeachment.Options{
			MinTenure:     cfg.ImpeachMinTenure,
			Cooldown:      cfg.ImpeachCooldown,
			RateLimit:     cfg.ImpeachRateLimit,
			RateWindow:    cfg.ImpeachRateWindow,
			QuorumPercent: cfg.ImpeachQuorumPercent,
			QuorumMin:     cfg.ImpeachQuorumMin,
			QuorumMax:     cfg.ImpeachQuorumMax,
			MaxAge:        cfg.ImpeachMaxAge,
			Announcer:     ann,
			Now:           deps.Now,
		}),
	}
}
