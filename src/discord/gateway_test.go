package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGuild struct {
	mu         sync.Mutex
	members    []*discordgo.Member
	count      int
	countCalls int
	failures   []error
	roleCalls  []string
	contexts   []context.Context
}

// seen records the context the request options would send the call with.
func (f *fakeGuild) seen(opts []discordgo.RequestOption) {
	cfg := &discordgo.RequestConfig{Request: httptest.NewRequest(http.MethodGet, "/", nil)}
	for _, opt := range opts {
		opt(cfg)
	}
	f.contexts = append(f.contexts, cfg.Request.Context())
}

func (f *fakeGuild) fail() error {
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

func (f *fakeGuild) GuildMemberRoleAdd(guildID, userID, roleID string, opts ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(opts)
	if err := f.fail(); err != nil {
		return err
	}
	f.roleCalls = append(f.roleCalls, "add:"+userID+":"+roleID)
	return nil
}

func (f *fakeGuild) GuildMemberRoleRemove(guildID, userID, roleID string, opts ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(opts)
	if err := f.fail(); err != nil {
		return err
	}
	f.roleCalls = append(f.roleCalls, "remove:"+userID+":"+roleID)
	return nil
}

func (f *fakeGuild) GuildMembers(guildID, after string, limit int, opts ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(opts)
	start := 0
	if after != "" {
		for i, m := range f.members {
			if m.User.ID == after {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(f.members) {
		end = len(f.members)
	}
	return f.members[start:end], nil
}

func (f *fakeGuild) GuildWithCounts(guildID string, opts ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(opts)
	f.countCalls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &discordgo.Guild{ID: guildID, ApproximateMemberCount: f.count}, nil
}

type mapCache struct {
	values map[string]int
}

func (c *mapCache) Get(_ context.Context, guildID string) (int, bool, error) {
	n, ok := c.values[guildID]
	return n, ok, nil
}

func (c *mapCache) Put(_ context.Context, guildID string, count int, _ time.Duration) error {
	c.values[guildID] = count
	return nil
}

func member(id string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roles}
}

func TestRoleGatewayGrantRevoke(t *testing.T) {
	api := &fakeGuild{}
	gw := NewRoleGateway(api, GatewayOptions{RoleID: "admin", BaseDelay: time.Millisecond})

	require.NoError(t, gw.Grant(context.Background(), "g1", "u1"))
	require.NoError(t, gw.Revoke(context.Background(), "g1", "u1"))
	assert.Equal(t, []string{"add:u1:admin", "remove:u1:admin"}, api.roleCalls)
}

func TestRoleGatewayRetriesTransientErrors(t *testing.T) {
	api := &fakeGuild{failures: []error{errors.New("HTTP 503 Service Unavailable"), errors.New("HTTP 429 Too Many Requests")}}
	gw := NewRoleGateway(api, GatewayOptions{RoleID: "admin", Attempts: 3, BaseDelay: time.Millisecond})

	require.NoError(t, gw.Grant(context.Background(), "g1", "u1"))
	assert.Len(t, api.roleCalls, 1)
}

func TestRoleGatewayPermanentErrorIsNotRetried(t *testing.T) {
	forbidden := errors.New("HTTP 403 Forbidden, Missing Permissions")
	api := &fakeGuild{failures: []error{forbidden}}
	gw := NewRoleGateway(api, GatewayOptions{RoleID: "admin", Attempts: 3, BaseDelay: time.Millisecond})

	err := gw.Grant(context.Background(), "g1", "u1")
	assert.ErrorIs(t, err, forbidden)
	assert.Empty(t, api.roleCalls)
}

func TestRoleGatewayNeedsRole(t *testing.T) {
	gw := NewRoleGateway(&fakeGuild{}, GatewayOptions{})
	assert.Error(t, gw.Grant(context.Background(), "g1", "u1"))
	_, err := gw.ListAdmins(context.Background(), "g1")
	assert.Error(t, err)
}

func TestRoleGatewayListAdminsPages(t *testing.T) {
	api := &fakeGuild{}
	for i := 0; i < 7; i++ {
		roles := []string{"other"}
		if i%3 == 0 {
			roles = append(roles, "admin")
		}
		api.members = append(api.members, member(fmt.Sprintf("u%d", i), roles...))
	}
	gw := NewRoleGateway(api, GatewayOptions{RoleID: "admin", PageSize: 2})

	admins, err := gw.ListAdmins(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u0", "u3", "u6"}, admins)
}

func TestRoleGatewayMembershipCountIsCached(t *testing.T) {
	api := &fakeGuild{count: 420}
	cache := &mapCache{values: map[string]int{}}
	gw := NewRoleGateway(api, GatewayOptions{RoleID: "admin", Cache: cache})

	for i := 0; i < 3; i++ {
		n, err := gw.MembershipCount(context.Background(), "g1")
		require.NoError(t, err)
		assert.Equal(t, 420, n)
	}
	assert.Equal(t, 1, api.countCalls)
	assert.Equal(t, 420, cache.values["g1"])
}

type recordingSender struct {
	sent map[string][]string
	err  error
}

func (r *recordingSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.sent == nil {
		r.sent = map[string][]string{}
	}
	r.sent[channelID] = append(r.sent[channelID], content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestChannelNotifier(t *testing.T) {
	sender := &recordingSender{}
	channels := map[string]string{"g1": "c1"}
	n := NewChannelNotifier(sender, func(guildID string) string { return channels[guildID] })

	require.NoError(t, n.Send(context.Background(), "g1", "Election opened, see https://example.com"))
	require.NoError(t, n.Send(context.Background(), "g2", "nobody listens"))

	require.Len(t, sender.sent["c1"], 1)
	assert.Contains(t, sender.sent["c1"][0], "<https://example.com>")
	assert.Len(t, sender.sent, 1)

	sender.err = errors.New("HTTP 403 Forbidden")
	assert.Error(t, n.Send(context.Background(), "g1", "again"))
}

type ctxKey struct{}

func TestRoleGatewayPassesContextToDiscord(t *testing.T) {
	api := &fakeGuild{members: []*discordgo.Member{member("u1", "admin")}, count: 10}
	gw := NewRoleGateway(api, GatewayOptions{RoleID: "admin", Attempts: 1})
	ctx := context.WithValue(context.Background(), ctxKey{}, "req")

	require.NoError(t, gw.Grant(ctx, "g1", "u1"))
	require.NoError(t, gw.Revoke(ctx, "g1", "u1"))
	_, err := gw.ListAdmins(ctx, "g1")
	require.NoError(t, err)
	_, err = gw.MembershipCount(ctx, "g1")
	require.NoError(t, err)

	require.Len(t, api.contexts, 4)
	for i, got := range api.contexts {
		assert.Equal(t, "req", got.Value(ctxKey{}), "call %d", i)
	}
}
