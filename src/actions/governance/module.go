package governance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/guildgov/src/actions/core"
	sharedconfig "github.com/stake-plus/guildgov/src/config"
	shareddata "github.com/stake-plus/guildgov/src/data"
	shareddiscord "github.com/stake-plus/guildgov/src/discord"
	govsvc "github.com/stake-plus/guildgov/src/governance"
	"github.com/stake-plus/guildgov/src/governance/commands"
	"github.com/stake-plus/guildgov/src/governance/notify"
	"github.com/stake-plus/guildgov/src/metrics"
	"github.com/stake-plus/guildgov/src/scheduler"
	"gorm.io/gorm"
)

var _ core.Module = (*Module)(nil)

// Module runs the governance slash commands and the periodic scans.
type Module struct {
	config  *sharedconfig.GovernanceConfig
	session *discordgo.Session
	service *govsvc.Service
	router  *commands.Router
	runner  *govsvc.Runner
	sched   *scheduler.Scheduler
	jobs    *scheduler.Registry
	cancel  context.CancelFunc
}

func NewModule(cfg *sharedconfig.GovernanceConfig, db *gorm.DB, rdb *redis.Client, m *metrics.Metrics) (*Module, error) {
	session, err := discordgo.New("Bot " + cfg.Base.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	service, runner := BuildService(cfg, db, rdb, session, m, cfg.ScanInterval)
	module := &Module{
		config:  cfg,
		session: session,
		service: service,
		router:  commands.NewRouter(service),
		runner:  runner,
	}

	module.initHandlers()
	return module, nil
}

// BuildService wires the governance engines onto a Discord session. Redis,
// when present, backs the member-count cache, the event stream and the scan
// locks, which are held for at most lockTTL.
func BuildService(cfg *sharedconfig.GovernanceConfig, db *gorm.DB, rdb *redis.Client, session *discordgo.Session, m *metrics.Metrics, lockTTL time.Duration) (*govsvc.Service, *govsvc.Runner) {
	gatewayOpts := shareddiscord.GatewayOptions{
		RoleID:   cfg.AdminRoleID,
		PageSize: cfg.AdminListPageSize,
		CacheTTL: cfg.MemberCountCacheTTL,
	}
	deps := govsvc.Deps{
		DB:       db,
		Profiles: shareddata.NewProfileStore(db),
		Notifier: shareddiscord.NewChannelNotifier(session, func(string) string { return cfg.AnnounceChannelID }),
		Metrics:  m,
	}
	var locker govsvc.Locker
	if rdb != nil {
		gatewayOpts.Cache = shareddiscord.NewRedisCountCache(rdb)
		deps.Events = notify.NewStream(rdb)
		locker = govsvc.NewRedisLocker(rdb, lockTTL)
	}
	deps.Gateway = shareddiscord.NewRoleGateway(session, gatewayOpts)

	service := govsvc.NewService(*cfg, deps)
	return service, service.NewRunner(locker)
}

// Name implements core.Module.
func (m *Module) Name() string { return "governance" }

// Service exposes the engines to other surfaces such as the HTTP API.
func (m *Module) Service() *govsvc.Service { return m.service }

// Runner exposes the scan runner.
func (m *Module) Runner() *govsvc.Runner { return m.runner }

func (m *Module) initHandlers() {
	m.session.AddHandler(m.onReady)
	m.session.AddHandler(m.onInteractionCreate)
}

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("governance: logged in as %s", s.State.User.Username)

	for _, guildID := range m.config.GuildIDs {
		if err := shareddiscord.RegisterSlashCommands(s, guildID); err != nil {
			log.Printf("governance: failed to register slash commands in %s: %v", guildID, err)
		} else {
			log.Printf("governance: slash commands registered in %s", guildID)
		}
	}
}

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if _, ok := m.router.Required(i.ApplicationCommandData().Name); !ok {
		return
	}

	ownerID := ""
	if i.GuildID != "" {
		if guild, err := s.State.Guild(i.GuildID); err == nil {
			ownerID = guild.OwnerID
		} else if guild, err := s.Guild(i.GuildID); err == nil {
			ownerID = guild.OwnerID
		}
	}

	tiers := shareddiscord.Tiers{ModeratorRoleID: m.config.ModeratorRoleID, TrustedRoleID: m.config.TrustedRoleID}
	inv, ok := invocationFrom(i, ownerID, tiers)
	if !ok {
		respond(s, i.Interaction, commands.Reply{Text: "Governance commands only work inside a server.", Private: true})
		return
	}

	ctx := context.Background()
	reply, err := m.router.Dispatch(ctx, inv)
	if err != nil {
		log.Printf("governance: /%s in %s by %s: %v", inv.Name, inv.Guild, inv.User, err)
		reply = commands.Reply{Text: "Something went wrong. Please try again later.", Private: true}
	}
	respond(s, i.Interaction, reply)
}

func respond(s *discordgo.Session, interaction *discordgo.Interaction, reply commands.Reply) {
	if err := shareddiscord.RespondStyled(s, interaction, reply.Title, reply.Text, reply.Private); err != nil {
		log.Printf("governance: failed to respond to interaction: %v", err)
	}
}

func (m *Module) Start(ctx context.Context) error {
	runtimeCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if err := m.session.Open(); err != nil {
		cancel()
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	m.sched = scheduler.New(runtimeCtx)
	m.jobs = scheduler.NewRegistry(m.sched)
	m.runner.Schedule(m.jobs, m.config.GuildIDs, m.config.ScanInterval)
	return nil
}

func (m *Module) Stop(ctx context.Context) {
	if m.jobs != nil {
		m.jobs.DisposeAll()
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.sched != nil {
		m.sched.Wait()
	}
	if m.session != nil {
		m.session.Close()
	}
}
