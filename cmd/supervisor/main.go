// Command supervisor is the ops CLI around the conversation supervisor's
// storage and configuration layers: migrating the Postgres schema,
// validating a config file, and reporting build metadata. The supervisor
// loop itself is a library (internal/supervisor) embedded by a host
// process that also owns the transport and the model-agent backend, both
// out of scope here — this binary only exercises what's reachable without
// them.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/store/pg"
	"github.com/nextlevelbuilder/goclaw/internal/store/sqlite"
)

// version is set at build time via -ldflags "-X main.version=v1.0.0".
var version = "dev"

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "supervisor",
		Short: "Ops CLI for the conversation supervisor's storage and config layers",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: supervisor.json5 or $SUPERVISOR_CONFIG)")
	root.AddCommand(versionCmd(), migrateCmd(), doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("SUPERVISOR_CONFIG"); v != "" {
		return v
	}
	return "supervisor.json5"
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("supervisor %s (%s/%s, %s)\n", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}

// migrateCmd applies the repository backend's schema. sqlite applies its
// embedded schema on every open (internal/store/sqlite.Open); this command
// exists mainly to drive the Postgres path, which golang-migrate manages.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations for the configured repository backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.Background()
			switch cfg.Repository.Backend {
			case "postgres":
				repo, err := pg.NewRepository(ctx, cfg.Repository.DSN)
				if err != nil {
					return fmt.Errorf("apply postgres migrations: %w", err)
				}
				_ = repo
				fmt.Println("postgres schema up to date")
			default:
				repo, err := sqlite.NewRepository(ctx, cfg.Repository.DSN)
				if err != nil {
					return fmt.Errorf("apply sqlite schema: %w", err)
				}
				_ = repo
				fmt.Println("sqlite schema up to date")
			}
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check config and repository connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("supervisor doctor")
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Go:       %s\n", runtime.Version())

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, defaults apply)")
	} else {
		fmt.Println(" (found)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	fmt.Printf("  Backend:  %s\n", cfg.Repository.Backend)

	ctx := context.Background()
	var repoErr error
	switch cfg.Repository.Backend {
	case "postgres":
		_, repoErr = pg.NewRepository(ctx, cfg.Repository.DSN)
	default:
		_, repoErr = sqlite.NewRepository(ctx, cfg.Repository.DSN)
	}
	if repoErr != nil {
		fmt.Printf("  Repository: FAILED (%s)\n", repoErr)
		return
	}
	fmt.Println("  Repository: OK")
}
