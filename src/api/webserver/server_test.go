package webserver

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/guildgov/src/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesUntilStopped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newAPIFixture(t)
	srv := NewServer(config.APIConfig{Port: "0", GuildIDs: []string{"g1"}}, f.svc, nil)
	require.Equal(t, "api", srv.Name())

	require.NoError(t, srv.Start(context.Background()))
	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	url := "http://127.0.0.1:" + port + "/v1/guilds/g1/election"
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(ctx)

	_, err = client.Get(url)
	assert.Error(t, err, "listener is closed after stop")
}
