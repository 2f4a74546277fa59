package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"waispath/internal/app"
	"waispath/internal/config"
	"waispath/internal/db"
	"waispath/internal/domain"
	"waispath/internal/engine"
	"waispath/internal/lifecycle"
	"waispath/internal/migrate"
	"waispath/internal/priority"
	"waispath/internal/repo"
	"waispath/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wp",
	Short: "WAISPATH admin portal CLI",
	Long: `WAISPATH manages accessibility obstacle reports for wheelchair users.
Reports flow through a lifecycle (pending -> verified -> resolved, with
false_report for invalid submissions) and are ranked by a priority score
combining severity, community votes, obstacle type, and status.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WAISPATH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-admin", "acting admin identifier")
	rootCmd.PersistentFlags().String("portal", "", "portal id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("portal", rootCmd.PersistentFlags().Lookup("portal"))
}

func registerCommands() {
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Manage obstacle reports"}
	rep.AddCommand(reportListCmd())
	rep.AddCommand(reportShowCmd())
	rep.AddCommand(reportCreateCmd())
	rep.AddCommand(reportStatusCmd())
	rep.AddCommand(reportActionsCmd())
	return rep
}

func reportListCmd() *cobra.Command {
	var status, category, obstacleType string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports ranked by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var statuses []string
				if status != "" && !strings.EqualFold(status, "all") {
					for _, s := range strings.Split(status, ",") {
						s = strings.TrimSpace(s)
						if s == "" {
							continue
						}
						if !lifecycle.Known(lifecycle.Status(s)) {
							return fmt.Errorf("unknown status %q", s)
						}
						statuses = append(statuses, s)
					}
				}
				ranking, err := e.RankedReports(ctx, repo.ReportFilters{
					Statuses: statuses,
					Type:     obstacleType,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				catFilter := ""
				if category != "" && !strings.EqualFold(category, "all") {
					catFilter = strings.ToUpper(category)
				}
				ranked := priority.FilterByCategory(ranking.Ranked, catFilter)
				if viper.GetBool("json") {
					return printJSON(ranked)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Severity", "Status", "Score", "Category", "Votes"})
				for _, p := range ranked {
					tw.AppendRow(table.Row{
						p.Report.ID, p.Report.Type, p.Report.Severity, p.Report.Status,
						p.Priority.Score, p.Priority.Category, p.Report.NetVotes(),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (comma separated, or all)")
	cmd.Flags().StringVar(&category, "category", "", "category filter (CRITICAL, HIGH, MEDIUM, LOW)")
	cmd.Flags().StringVar(&obstacleType, "type", "", "obstacle type filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum reports")
	return cmd
}

func reportShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a report with its priority breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.Repo.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				result := priority.Calculate(rep, e.Weights())
				return printJSONOrTable(map[string]any{
					"report":            rep,
					"priority":          result,
					"available_actions": lifecycle.AvailableActions(lifecycle.Status(rep.Status)),
				})
			})
		},
	}
	return cmd
}

func reportCreateCmd() *cobra.Command {
	var obstacleType, severity, description, location, adminRole string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin-sourced report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.CreateReport(ctx, engine.ReportCreateOptions{
					Type:        domain.ObstacleType(obstacleType),
					Severity:    domain.Severity(severity),
					Description: description,
					Location:    location,
					AdminRole:   adminRole,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&obstacleType, "type", "", "obstacle type")
	cmd.Flags().StringVar(&severity, "severity", "", "severity (low, medium, high, blocking)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&adminRole, "admin-role", "", "reporting admin role")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("severity")
	return cmd
}

func reportStatusCmd() *cobra.Command {
	var to, notes string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Apply a lifecycle transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.ChangeReportStatus(ctx, engine.ChangeStatusOptions{
					ID:      args[0],
					To:      lifecycle.Status(to),
					ActorID: viper.GetString("actor-id"),
					Notes:   notes,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target status (pending, verified, resolved, false_report)")
	cmd.Flags().StringVar(&notes, "notes", "", "admin notes")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func reportActionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions <id>",
		Short: "Show available transitions for a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actions, err := e.ReportActions(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(actions)
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Dashboard statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.DashboardStats(ctx)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountReportsByStatus(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"stats":         stats,
					"status_counts": counts,
				})
			})
		},
	}
	return cmd
}

func auditCmd() *cobra.Command {
	audit := &cobra.Command{Use: "audit", Short: "Inspect the audit trail"}
	audit.AddCommand(auditTailCmd())
	return audit
}

func auditTailCmd() *cobra.Command {
	var n int
	var reportID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.AuditTail(ctx, reportID, n, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Report", "From", "To", "Actor", "Notes"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.ID, entry.TS, entry.ReportID, entry.FromStatus, entry.ToStatus, entry.ActorID, entry.Notes})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&reportID, "report", "", "filter by report id")
	return cmd
}

func adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Manage admins, roles, and API keys"}
	admin.AddCommand(adminListCmd())
	admin.AddCommand(adminShowCmd())
	key := &cobra.Command{Use: "key", Short: "Manage API keys"}
	key.AddCommand(adminKeyCreateCmd())
	key.AddCommand(adminKeyListCmd())
	key.AddCommand(adminKeyRevokeCmd())
	admin.AddCommand(key)
	role := &cobra.Command{Use: "role", Short: "Manage role grants"}
	role.AddCommand(adminRoleGrantCmd())
	role.AddCommand(adminRoleRevokeCmd())
	admin.AddCommand(role)
	return admin
}

func adminListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List admins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				admins, err := r.ListAdmins(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(admins)
			})
		},
	}
	return cmd
}

func adminShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an admin with roles and permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				admin, err := e.Repo.GetAdmin(ctx, args[0])
				if err != nil {
					return err
				}
				roles, err := e.Auth.AdminRoles(ctx, admin.ID)
				if err != nil {
					return err
				}
				perms, err := e.Auth.AdminPermissions(ctx, admin.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"admin":       admin,
					"roles":       roles,
					"permissions": perms,
				})
			})
		},
	}
	return cmd
}

func adminKeyCreateCmd() *cobra.Command {
	var adminID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if adminID == "" {
				return fmt.Errorf("--admin required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				buf := make([]byte, 32)
				if _, err := rand.Read(buf); err != nil {
					return err
				}
				secret := "wpk_" + hex.EncodeToString(buf)
				now := time.Now().UTC().Format(time.RFC3339)
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.EnsureAdmin(ctx, tx, adminID, "", now); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				key := domain.APIKey{
					ID:        uuid.New().String(),
					AdminID:   adminID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: now,
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       key.ID,
					"admin_id": key.AdminID,
					"name":     key.Name,
					"key":      secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin", "", "admin id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func adminKeyListCmd() *cobra.Command {
	var adminID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, adminID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Admin", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.AdminID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin", "", "filter by admin id")
	return cmd
}

func adminKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func adminRoleGrantCmd() *cobra.Command {
	var adminID, roleID string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a role to an admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if adminID == "" || roleID == "" {
				return fmt.Errorf("--admin and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(e.Config.RBAC.Roles) > 0 {
					if _, ok := e.Config.RBAC.Roles[roleID]; !ok {
						return fmt.Errorf("unknown role %q", roleID)
					}
				}
				now := time.Now().UTC().Format(time.RFC3339)
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.EnsureAdmin(ctx, tx, adminID, "", now); err != nil {
					return err
				}
				if err := e.Repo.AssignRole(ctx, tx, adminID, roleID); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin", "", "admin id")
	cmd.Flags().StringVar(&roleID, "role", "", "role id")
	return cmd
}

func adminRoleRevokeCmd() *cobra.Command {
	var adminID, roleID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a role from an admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if adminID == "" || roleID == "" {
				return fmt.Errorf("--admin and --role required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.RevokeRole(ctx, tx, adminID, roleID); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin", "", "admin id")
	cmd.Flags().StringVar(&roleID, "role", "", "role id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage portal config"}
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertPortalConfig(ctx, cfg.Portal.ID, cfg); err != nil {
					return err
				}
				fmt.Printf("Imported config for portal %s\n", cfg.Portal.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config yaml path")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored portal config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				if _, err := config.Load(viper.GetString("workspace")); err != nil {
					return err
				}
				fmt.Println("config ok")
				return nil
			}
			if _, err := config.FromFile(file); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config yaml path (defaults to the workspace waispath.yml)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolvePortalAndConfig(cmd.Context(), workspace, viper.GetString("portal"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("WAISPATH_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyHeader,
				Logger:                 e.Logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("WAISPATH_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving WAISPATH admin API", "addr", addr, "base_path", basePath, "portal", cfg.Portal.ID, "db", db.Path(workspace))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-legacy-actor-header", false, "accept the deprecated X-Actor-Id header")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolvePortalAndConfig(ctx, workspace, viper.GetString("portal"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
