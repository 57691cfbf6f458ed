package actions

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/guildgov/src/actions/core"
	governancemodule "github.com/stake-plus/guildgov/src/actions/governance"
	"github.com/stake-plus/guildgov/src/api/webserver"
	sharedconfig "github.com/stake-plus/guildgov/src/config"
	"github.com/stake-plus/guildgov/src/metrics"
	"gorm.io/gorm"
)

// StartAll wires up the enabled modules and starts them. The API shares the
// governance module's service, so it only runs when governance does.
func StartAll(ctx context.Context, cfg *sharedconfig.GovernanceConfig, apiCfg sharedconfig.APIConfig, db *gorm.DB, rdb *redis.Client, m *metrics.Metrics) (*core.Manager, error) {
	mgr := core.NewManager()

	if !cfg.Enabled {
		log.Printf("actions: governance module disabled via configuration")
		return mgr, nil
	}
	if cfg.Base.Token == "" {
		return nil, fmt.Errorf("actions: discord token is not configured")
	}

	mod, err := governancemodule.NewModule(cfg, db, rdb, m)
	if err != nil {
		return nil, fmt.Errorf("actions: init governance module: %w", err)
	}
	if err := mgr.Add(mod); err != nil {
		return nil, fmt.Errorf("actions: add governance module: %w", err)
	}
	if apiCfg.Enabled {
		if err := mgr.Add(webserver.NewServer(apiCfg, mod.Service(), mod.Runner())); err != nil {
			return nil, fmt.Errorf("actions: add api: %w", err)
		}
	}

	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	log.Printf("actions: governance running for %d guilds", len(cfg.GuildIDs))
	return mgr, nil
}
