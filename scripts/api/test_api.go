// Minimal end-to-end smoke test for the governance API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	baseURL   = getenv("API_URL", "http://localhost:8080/v1")
	redisURL  = getenv("REDIS_URL", "")
	guildID   = getenv("GUILD_ID", "")
	jwtSecret = getenv("JWT_SECRET", "")
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	if guildID == "" || jwtSecret == "" {
		log.Fatal("GUILD_ID and JWT_SECRET are required")
	}
	ctx := context.Background()
	token := operatorToken()

	var before string
	var rdb *redis.Client
	if redisURL != "" {
		rdb = mustRedis()
		defer rdb.Close()
		before = lastEventID(ctx, rdb)
	}

	checkElection()
	checkAdministrators()

	doAuth(token, "POST", "/guilds/"+guildID+"/scan", map[string]any{"scan": "expiry"}, nil, http.StatusOK)
	doJSON("POST", "/guilds/"+guildID+"/scan", nil, nil, http.StatusUnauthorized)

	if rdb != nil {
		log.Printf("events: last id before %q, after %q", before, lastEventID(ctx, rdb))
	}

	fmt.Println("✓ all endpoints passed")
}

// ----------------------------- auth

func operatorToken() string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "smoke-" + uuid.NewString(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	s, err := tok.SignedString([]byte(jwtSecret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	return s
}

// ----------------------------- governance

func checkElection() {
	var resp struct {
		Election          *struct{ ID uint64 }
		MaxAdministrators int
	}
	doJSON("GET", "/guilds/"+guildID+"/election", nil, &resp, http.StatusOK)
	if resp.MaxAdministrators == 0 {
		log.Fatal("election: maxAdministrators missing")
	}
	if resp.Election != nil {
		var cands struct{ Candidates []map[string]any }
		doJSON("GET", fmt.Sprintf("/guilds/%s/elections/%d/candidates", guildID, resp.Election.ID), nil, &cands, http.StatusOK)
		log.Printf("election %d has %d candidates", resp.Election.ID, len(cands.Candidates))
	}
}

func checkAdministrators() {
	var resp struct {
		Administrators []map[string]any
		Max            int
	}
	doJSON("GET", "/guilds/"+guildID+"/administrators", nil, &resp, http.StatusOK)
	log.Printf("administrators: %d of %d seats", len(resp.Administrators), resp.Max)
}

// ----------------------------- helpers

func mustRedis() *redis.Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	return redis.NewClient(opt)
}

func lastEventID(ctx context.Context, rdb *redis.Client) string {
	msgs, err := rdb.XRevRangeN(ctx, "guildgov.events", "+", "-", 1).Result()
	if err != nil {
		log.Fatalf("redis xrevrange: %v", err)
	}
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0].ID
}

func doAuth(token, method, path string, body, out any, want int) {
	doReq(method, path, token, body, out, want)
}

func doJSON(method, path string, body, out any, want int) {
	doReq(method, path, "", body, out, want)
}

func doReq(method, path, token string, body, out any, want int) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s encode: %v", method, path, err)
		}
	}
	req, _ := http.NewRequest(method, baseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		log.Fatalf("%s %s: want %d got %d", method, path, want, res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
}
