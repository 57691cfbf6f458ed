package discord

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/logging"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"github.com/stake-plus/guildgov/src/webclient"
)

// GuildAPI is the part of a Discord session the role gateway drives.
type GuildAPI interface {
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildWithCounts(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

// CountCache stores guild membership counts between lookups.
type CountCache interface {
	Get(ctx context.Context, guildID string) (int, bool, error)
	Put(ctx context.Context, guildID string, count int, ttl time.Duration) error
}

// RedisCountCache keeps membership counts in Redis.
type RedisCountCache struct {
	rdb *redis.Client
}

func NewRedisCountCache(rdb *redis.Client) *RedisCountCache {
	return &RedisCountCache{rdb: rdb}
}

func (c *RedisCountCache) Get(ctx context.Context, guildID string) (int, bool, error) {
	return data.CachedMemberCount(ctx, c.rdb, guildID)
}

func (c *RedisCountCache) Put(ctx context.Context, guildID string, count int, ttl time.Duration) error {
	return data.StoreMemberCount(ctx, c.rdb, guildID, count, ttl)
}

type GatewayOptions struct {
	RoleID    string
	PageSize  int
	Cache     CountCache
	CacheTTL  time.Duration
	Attempts  int
	BaseDelay time.Duration
}

// RoleGateway grants administrator capability by toggling a guild role.
type RoleGateway struct {
	api  GuildAPI
	opts GatewayOptions
}

var _ gov.PrivilegeGateway = (*RoleGateway)(nil)

func NewRoleGateway(api GuildAPI, opts GatewayOptions) *RoleGateway {
	if opts.PageSize <= 0 || opts.PageSize > 1000 {
		opts.PageSize = 1000
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &RoleGateway{api: api, opts: opts}
}

func (g *RoleGateway) Grant(ctx context.Context, guildID, userID string) error {
	if g.opts.RoleID == "" {
		return fmt.Errorf("discord: admin role is not configured")
	}
	return g.retry(ctx, "grant", guildID, func() error {
		return g.api.GuildMemberRoleAdd(guildID, userID, g.opts.RoleID, discordgo.WithContext(ctx))
	})
}

func (g *RoleGateway) Revoke(ctx context.Context, guildID, userID string) error {
	if g.opts.RoleID == "" {
		return fmt.Errorf("discord: admin role is not configured")
	}
	return g.retry(ctx, "revoke", guildID, func() error {
		return g.api.GuildMemberRoleRemove(guildID, userID, g.opts.RoleID, discordgo.WithContext(ctx))
	})
}

// ListAdmins pages through the member list and returns holders of the role.
func (g *RoleGateway) ListAdmins(ctx context.Context, guildID string) ([]string, error) {
	if g.opts.RoleID == "" {
		return nil, fmt.Errorf("discord: admin role is not configured")
	}

	var admins []string
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var page []*discordgo.Member
		err := g.retry(ctx, "list members", guildID, func() error {
			var err error
			page, err = g.api.GuildMembers(guildID, after, g.opts.PageSize, discordgo.WithContext(ctx))
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			if m == nil || m.User == nil {
				continue
			}
			if memberHasRole(m, g.opts.RoleID) {
				admins = append(admins, m.User.ID)
			}
			after = m.User.ID
		}
		if len(page) < g.opts.PageSize {
			return admins, nil
		}
	}
}

// MembershipCount returns the approximate member count, cached for CacheTTL.
func (g *RoleGateway) MembershipCount(ctx context.Context, guildID string) (int, error) {
	if g.opts.Cache != nil {
		n, ok, err := g.opts.Cache.Get(ctx, guildID)
		if err != nil {
			log.Printf("discord: member count cache read for %s: %v", guildID, err)
		} else if ok {
			return n, nil
		}
	}

	var guild *discordgo.Guild
	err := g.retry(ctx, "member count", guildID, func() error {
		var err error
		guild, err = g.api.GuildWithCounts(guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return 0, err
	}

	n := guild.ApproximateMemberCount
	if n == 0 {
		n = guild.MemberCount
	}
	if g.opts.Cache != nil {
		if err := g.opts.Cache.Put(ctx, guildID, n, g.opts.CacheTTL); err != nil {
			log.Printf("discord: member count cache write for %s: %v", guildID, err)
		}
	}
	return n, nil
}

func (g *RoleGateway) retry(ctx context.Context, op, guildID string, fn func() error) error {
	err := webclient.Retry(ctx, g.opts.Attempts, g.opts.BaseDelay, logging.IsTransient, fn)
	if err != nil {
		if logging.IsRateLimit(err) {
			log.Printf("discord: %s in %s rate limited: %v", op, guildID, err)
		}
		return fmt.Errorf("discord %s: %w", op, err)
	}
	return nil
}
