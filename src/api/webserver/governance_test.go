package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stake-plus/guildgov/src/config"
	"github.com/stake-plus/guildgov/src/governance"
	"github.com/stake-plus/guildgov/src/governance/govtest"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiFixture struct {
	svc     *governance.Service
	engine  *gin.Engine
	members *govtest.Profiles
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	profiles := govtest.NewProfiles()
	svc := governance.NewService(config.GovernanceConfig{
		RegistrationPeriod: 72 * time.Hour,
		VotingPeriod:       48 * time.Hour,
		MaxAdministrators:  3,
		AutoApprove:        true,
		ReelectionQuorum:   3,
		ImpeachQuorumMin:   5,
	}, governance.Deps{
		DB:       govtest.OpenDB(t),
		Profiles: profiles,
		Gateway:  govtest.NewGateway(40),
		Now:      govtest.NewClock().Func(),
	})
	runner := governance.NewRunner(svc.Jobs(), nil)
	engine := New(config.APIConfig{
		JWTSecret:      testSecret,
		AllowedOrigins: []string{"http://localhost:3000"},
		GuildIDs:       []string{"g1"},
	}, svc, runner)
	return &apiFixture{svc: svc, engine: engine, members: profiles}
}

func (f *apiFixture) do(t *testing.T, method, path, body string, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestElectionEndpointWithoutElection(t *testing.T) {
	f := newAPIFixture(t)

	w, body := f.do(t, http.MethodGet, "/v1/guilds/g1/election", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["election"])
	assert.EqualValues(t, 3, body["maxAdministrators"])
}

func TestCandidatesAndApproval(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	e, err := f.svc.Elections.Initiate(ctx, "g1", "")
	require.NoError(t, err)
	cand := f.members.Members("g1", "cand", "7", 1)[0]
	_, err = f.svc.Registry.Register(ctx, e.ID, cand, "<b>vote</b> for me")
	require.NoError(t, err)

	path := "/v1/guilds/g1/elections/" + jsonID(e.ID)
	w, body := f.do(t, http.MethodGet, path+"/candidates", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	cands := body["candidates"].([]interface{})
	require.Len(t, cands, 1)
	first := cands[0].(map[string]interface{})
	assert.Equal(t, cand, first["userId"])
	assert.Equal(t, "vote for me", first["manifesto"])
	assert.Equal(t, true, first["approved"])

	w, _ = f.do(t, http.MethodPost, path+"/candidates/"+cand+"/approval", `{"approved":false}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, http.MethodPost, path+"/candidates/"+cand+"/approval", `{"approved":false}`, signToken(t, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := signToken(t, testSecret)
	w, _ = f.do(t, http.MethodPost, path+"/candidates/"+cand+"/approval", `{}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPost, path+"/candidates/"+cand+"/approval", `{"approved":false}`, token)
	require.Equal(t, http.StatusNoContent, w.Code)

	w, body = f.do(t, http.MethodGet, path+"/candidates?approved=true", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["candidates"])

	w, _ = f.do(t, http.MethodPost, path+"/candidates/nobody/approval", `{"approved":true}`, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodGet, "/v1/guilds/g2/elections/"+jsonID(e.ID)+"/candidates", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "elections are scoped to their guild")
}

func TestProceedingEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Executor.Appoint(ctx, "g1", "adm", "7", nil)
	require.NoError(t, err)
	s, err := f.svc.Reelections.CreateSession(ctx, "g1", "adm", nil, true, "term review")
	require.NoError(t, err)

	w, body := f.do(t, http.MethodGet, "/v1/guilds/g1/reelections/"+jsonID(s.ID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "adm", body["adminUserId"])
	assert.Equal(t, string(gov.SessionOngoing), body["status"])
	assert.EqualValues(t, 3, body["requiredVotes"])
	assert.EqualValues(t, 0, body["support"])

	w, _ = f.do(t, http.MethodGet, "/v1/guilds/g2/reelections/"+jsonID(s.ID), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodGet, "/v1/guilds/g1/reelections/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/v1/guilds/g1/impeachments/99", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = f.do(t, http.MethodGet, "/v1/guilds/g1/administrators", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	admins := body["administrators"].([]interface{})
	require.Len(t, admins, 1)
	assert.Equal(t, "adm", admins[0].(map[string]interface{})["userId"])
}

func TestScanEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, testSecret)

	w, _ := f.do(t, http.MethodPost, "/v1/guilds/g1/scan", `{"scan":"bogus"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := f.do(t, http.MethodPost, "/v1/guilds/g1/scan", `{"scan":"election"}`, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])

	st, err := f.svc.Elections.Status(context.Background(), "g1")
	require.NoError(t, err)
	require.NotNil(t, st.Election)
	assert.Equal(t, gov.ElectionInitial, st.Election.Type)

	w, _ = f.do(t, http.MethodPost, "/v1/guilds/g1/scan", "", token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScanEndpointRejectsUnconfiguredGuild(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, testSecret)

	w, body := f.do(t, http.MethodPost, "/v1/guilds/g2/scan", `{"scan":"election"}`, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "guild is not configured", body["err"])

	st, err := f.svc.Elections.Status(context.Background(), "g2")
	require.NoError(t, err)
	assert.Nil(t, st.Election, "no election is opened for an unknown guild")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Now()
	assert.True(t, rl.allow("a", now))
	assert.True(t, rl.allow("a", now))
	assert.False(t, rl.allow("a", now))
	assert.True(t, rl.allow("b", now))
	assert.True(t, rl.allow("a", now.Add(time.Minute)))
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
