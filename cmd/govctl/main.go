package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	governancemodule "github.com/stake-plus/guildgov/src/actions/governance"
	sharedconfig "github.com/stake-plus/guildgov/src/config"
	shareddata "github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/governance"
	"github.com/stake-plus/guildgov/src/governance/ballot"
	"gorm.io/gorm"
)

const programName = "govctl"

var globalFlags = struct {
	dsn     string
	guilds  string
	timeout time.Duration
}{}

func main() {
	log.SetFlags(log.LstdFlags)

	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "One-shot governance maintenance",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&globalFlags.dsn, "dsn", "", "database DSN (default: MYSQL_DSN)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.guilds, "guilds", "", "comma-separated guild IDs (default: configured guilds)")
	rootCmd.PersistentFlags().DurationVar(&globalFlags.timeout, "timeout", 5*time.Minute, "overall timeout")

	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(scanCommand())
	rootCmd.AddCommand(reconcileCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the schema and re-key legacy ballots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), globalFlags.timeout)
			defer cancel()

			db, err := openDB()
			if err != nil {
				return err
			}
			if err := shareddata.Migrate(db); err != nil {
				return err
			}
			report, err := ballot.MigrateLegacy(ctx, db)
			if err != nil {
				return fmt.Errorf("legacy ballots: %w", err)
			}
			fmt.Printf("schema migrated; legacy ballots: %d migrated, %d duplicate, %d orphaned\n",
				report.Migrated, report.Duplicate, report.Orphaned)
			return nil
		},
	}
}

func scanCommand() *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run every periodic scan once for each guild",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), globalFlags.timeout)
			defer cancel()

			_, runner, guilds, err := setup()
			if err != nil {
				return err
			}
			if only != "" {
				err = runner.Run(ctx, only, guilds)
			} else {
				err = runner.RunAll(ctx, guilds)
			}
			if err != nil {
				return err
			}
			fmt.Printf("scans completed for %d guilds\n", len(guilds))
			return nil
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "run a single scan: election|reelection|expiry|reconcile")
	return cmd
}

func reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare administrator records with the admin role and regrant missing roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), globalFlags.timeout)
			defer cancel()

			svc, _, guilds, err := setup()
			if err != nil {
				return err
			}
			failed := 0
			for _, guildID := range guilds {
				report, err := svc.Executor.Reconcile(ctx, guildID)
				if err != nil {
					log.Printf("reconcile %s: %v", guildID, err)
					failed++
					continue
				}
				fmt.Printf("%s: regranted %v, privileged without record %v\n", guildID, report.Regranted, report.Unrecorded)
			}
			if failed > 0 {
				return fmt.Errorf("%d guilds failed to reconcile", failed)
			}
			return nil
		},
	}
}

func openDB() (*gorm.DB, error) {
	dsn := globalFlags.dsn
	if dsn == "" {
		var err error
		if dsn, err = shareddata.GetMySQLDSN(); err != nil {
			return nil, err
		}
	}
	db, err := shareddata.Connect(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return db, nil
}

func setup() (*governance.Service, *governance.Runner, []string, error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := sharedconfig.LoadGovernanceConfig(db)
	guilds := cfg.GuildIDs
	if globalFlags.guilds != "" {
		guilds = splitGuilds(globalFlags.guilds)
	}
	if len(guilds) == 0 {
		return nil, nil, nil, fmt.Errorf("no guilds configured")
	}
	svc, runner, err := buildService(cfg, db)
	if err != nil {
		return nil, nil, nil, err
	}
	return svc, runner, guilds, nil
}

func buildService(cfg sharedconfig.GovernanceConfig, db *gorm.DB) (*governance.Service, *governance.Runner, error) {
	if cfg.Base.Token == "" {
		return nil, nil, fmt.Errorf("discord token is not configured")
	}
	session, err := discordgo.New("Bot " + cfg.Base.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("discord session: %w", err)
	}
	rdb, err := shareddata.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	svc, runner := governancemodule.BuildService(&cfg, db, rdb, session, nil, globalFlags.timeout)
	return svc, runner, nil
}

func splitGuilds(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
