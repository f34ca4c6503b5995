package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docsync/internal/app"
	"docsync/internal/config"
	"docsync/internal/database"
	"docsync/internal/database/migrations"
	"docsync/internal/model"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(cmd *cobra.Command) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// tenantFlags reads the --tenant and --tier flags shared by document commands.
func tenantFlags(cmd *cobra.Command) (string, model.Tier, error) {
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		return "", "", fmt.Errorf("--tenant is required")
	}
	tier, _ := cmd.Flags().GetString("tier")
	return tenant, model.Tier(tier), nil
}

var rootCmd = &cobra.Command{
	Use:   "syncd",
	Short: "Multi-tenant document sync service",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Storage:  %s\n", cfg.Storage.Type)
		fmt.Printf("Database: %s\n", cfg.Database.Type)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		store, err := database.NewStoreFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		if err := migrations.MigrateUp(store.DB()); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		fmt.Println("Migrations applied.")
		return nil
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload PATH FILE",
	Short: "Upload a document revision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, tier, err := tenantFlags(cmd)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading content file: %w", err)
		}

		sidecar := map[string]any{}
		if sidecarPath, _ := cmd.Flags().GetString("sidecar"); sidecarPath != "" {
			raw, err := os.ReadFile(sidecarPath)
			if err != nil {
				return fmt.Errorf("reading sidecar file: %w", err)
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("parsing sidecar JSON: %w", err)
			}
			m, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("sidecar must be a JSON object")
			}
			sidecar = m
		}

		var baseVersion *int64
		if cmd.Flags().Changed("base-version") {
			v, _ := cmd.Flags().GetInt64("base-version")
			baseVersion = &v
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Upload(cmd.Context(), tenant, tier, args[0], content, sidecar, baseVersion)
		if err != nil {
			return err
		}

		if result.Conflict != nil {
			fmt.Printf("Conflict: id=%s remote_version=%d\n", result.Conflict.ConflictID, result.Conflict.RemoteVersion)
			return nil
		}
		fmt.Printf("Uploaded %s  id=%s version=%d\n", result.Document.Path, result.Document.ID, result.Document.Version)
		return nil
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download DOC_ID",
	Short: "Download a document's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, tier, err := tenantFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Download(cmd.Context(), tenant, tier, args[0])
		if err != nil {
			return err
		}

		if out, _ := cmd.Flags().GetString("output"); out != "" {
			if err := os.WriteFile(out, result.Content, 0644); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(result.Content), out)
			return nil
		}
		os.Stdout.Write(result.Content)
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List a tenant's documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, tier, err := tenantFlags(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		cursor, _ := cmd.Flags().GetString("cursor")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		page, err := a.List(cmd.Context(), tenant, tier, limit, cursor)
		if err != nil {
			return err
		}

		for _, d := range page.Documents {
			fmt.Printf("%s  v%-4d  %8d  %s  %s\n",
				d.ID, d.Version, d.SizeBytes,
				d.UpdatedAt.Format("2006-01-02 15:04:05"), d.Path)
		}
		if len(page.Conflicts) > 0 {
			fmt.Printf("\n%d open conflict(s)\n", len(page.Conflicts))
		}
		if page.NextCursor != "" {
			fmt.Printf("\nNext page: --cursor %s\n", page.NextCursor)
		}
		return nil
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm DOC_ID",
	Short: "Soft-delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, tier, err := tenantFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.SoftDelete(cmd.Context(), tenant, tier, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s (recoverable until purge)\n", doc.Path)
		return nil
	},
}

// mv command
var mvCmd = &cobra.Command{
	Use:   "mv DOC_ID NEW_PATH",
	Short: "Rename a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, tier, err := tenantFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Rename(cmd.Context(), tenant, tier, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Renamed to %s\n", doc.Path)
		return nil
	},
}

// usage command
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show a tenant's quota usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, tier, err := tenantFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.Usage(cmd.Context(), tenant, tier)
		if err != nil {
			return err
		}

		fmt.Printf("Documents: %d / %d\n", u.DocumentCount, u.LimitDocuments)
		fmt.Printf("Bytes:     %d / %d\n", u.TotalSizeBytes, u.LimitBytes)
		if u.LastSyncAt != nil {
			fmt.Printf("Last sync: %s\n", u.LastSyncAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// conflicts command
var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve conflicts",
}

var conflictsShowCmd = &cobra.Command{
	Use:   "show CONFLICT_ID",
	Short: "Show a conflict's revisions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, tier, err := tenantFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		detail, err := a.GetConflict(cmd.Context(), tenant, tier, args[0])
		if err != nil {
			return err
		}

		c := detail.Conflict
		fmt.Printf("Conflict %s on document %s\n", c.ID, c.DocumentID)
		fmt.Printf("Local version:  %d  (%s)\n", c.LocalVersion, c.LocalContentHash[:12])
		fmt.Printf("Remote version: %d  (%s)\n", c.RemoteVersion, c.RemoteContentHash[:12])
		if c.Resolved() {
			fmt.Printf("Resolved as %q at %s\n", c.Resolution, c.ResolvedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve CONFLICT_ID RESOLUTION",
	Short: "Resolve a conflict (local, remote, or both)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, tier, err := tenantFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.ResolveConflict(cmd.Context(), tenant, tier, args[0], model.Resolution(args[1]))
		if err != nil {
			return err
		}

		fmt.Printf("Resolved as %q\n", result.Resolution)
		if result.BothDocument != nil {
			fmt.Printf("Forked copy: %s at %s\n", result.BothDocument.ID, result.BothDocument.Path)
		}
		return nil
	},
}

// sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one lifecycle sweep (purge expired soft-deletes, trim logs)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Sweep(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Purged %d document(s), deleted %d conflict(s), trimmed %d operation(s)\n",
			stats.PurgedDocuments, stats.DeletedConflicts, stats.TrimmedOperations)
		if stats.Errors > 0 {
			fmt.Printf("%d error(s); see log\n", stats.Errors)
		}
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sweeper loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		a.RunSweeper(cmd.Context())
		return nil
	},
}

func addTenantFlags(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().String("tenant", "", "Tenant ID")
		c.Flags().String("tier", string(model.TierFree), "Subscription tier (free, premium, pro)")
	}
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	conflictsCmd.AddCommand(conflictsShowCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)

	uploadCmd.Flags().String("sidecar", "", "Path to a sidecar JSON file")
	uploadCmd.Flags().Int64("base-version", 0, "Version this revision is based on")
	downloadCmd.Flags().StringP("output", "o", "", "Write content to a file instead of stdout")
	lsCmd.Flags().IntP("limit", "n", 50, "Maximum number of documents per page")
	lsCmd.Flags().String("cursor", "", "Cursor from a previous page")

	addTenantFlags(uploadCmd, downloadCmd, lsCmd, rmCmd, mvCmd, usageCmd, conflictsShowCmd, conflictsResolveCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(runCmd)
}
