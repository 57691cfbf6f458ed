package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stake-plus/guildgov/src/data"
	"gorm.io/gorm"
)

// Base contains common configuration fields
type Base struct {
	Token    string
	GuildIDs []string
	MySQLDSN string
	RedisURL string
}

// LoadBase loads common configuration (discord token, guild IDs, DSNs)
func LoadBase(db *gorm.DB) Base {
	if db != nil {
		if err := data.LoadSettings(db); err != nil {
			log.Printf("config: settings table unavailable, using environment: %v", err)
		}
	}

	token := GetSetting("discord_token", "DISCORD_TOKEN", "")


	dsn, err := data.GetMySQLDSN()
	if err != nil {
		log.Printf("config: %v", err)
	}

	return Base{
		Token:    token,
		GuildIDs: guildIDs(),
		MySQLDSN: dsn,
		RedisURL: GetSetting("redis_url", "REDIS_URL", ""),
	}
}

func guildIDs() []string {
	guilds := GetSetting("guild_ids", "GUILD_IDS", "")
	if guilds == "" {
		guilds = GetSetting("guild_id", "GUILD_ID", "")
	}
	return splitList(guilds)
}

// GetSetting retrieves a setting with env fallback
func GetSetting(name, envKey, defaultValue string) string {
	val := data.GetSetting(name)
	if val == "" && envKey != "" {
		val = os.Getenv(envKey)
	}
	if val == "" {
		val = defaultValue
	}
	return val
}

func getBoolSetting(settingKey, envKey string, defaultValue bool) bool {
	if v := GetSetting(settingKey, envKey, ""); v != "" {
		return parseBoolDefault(v, defaultValue)
	}
	return defaultValue
}

func getIntSetting(settingKey, envKey string, defaultValue int) int {
	v := GetSetting(settingKey, envKey, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", settingKey, v, defaultValue)
		return defaultValue
	}
	return n
}

// getDurationSetting accepts Go duration syntax ("36h") or a bare number of
// hours.
func getDurationSetting(settingKey, envKey string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(GetSetting(settingKey, envKey, ""))
	if v == "" {
		return defaultValue
	}
	if hours, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(hours * float64(time.Hour))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: %s=%q is not a duration, using %v", settingKey, v, defaultValue)
		return defaultValue
	}
	return d
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
