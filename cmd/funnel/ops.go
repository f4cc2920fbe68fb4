package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"internfunnel/internal/config"
	"internfunnel/internal/db"
	"internfunnel/internal/engine"
	"internfunnel/internal/engine/auth"
	"internfunnel/internal/migrate"
)

func migrateCmd() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: cfg.Store.Workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if !statusOnly {
				if err := migrate.Migrate(conn); err != nil {
					return err
				}
			}
			current, latest, err := migrate.Status(conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"path": db.Path(cfg.Store.Workspace), "current": current, "latest": latest})
			}
			fmt.Printf("%s: schema version %d (latest %d)\n", db.Path(cfg.Store.Workspace), current, latest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report the schema version without migrating")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect the funnel configuration",
		Long:  "Config is read from funnel.yml in the workspace and overridden by FUNNEL_* variables (and the legacy unprefixed names such as JWT_SECRET).",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default funnel.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// redacted hides credentials in config show output.
func redacted(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&cfg.Auth.AdminPassword)
	mask(&cfg.Auth.PasswordHash)
	mask(&cfg.Auth.JWTSecret)
	mask(&cfg.ATS.Token)
	mask(&cfg.Interview.APIKey)
	mask(&cfg.Email.APIKey)
	hooks := make([]config.WebhookConfig, len(cfg.Webhooks))
	copy(hooks, cfg.Webhooks)
	for i := range hooks {
		mask(&hooks[i].Secret)
	}
	cfg.Webhooks = hooks
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := redacted(*cfg)
			if viper.GetBool("json") {
				return printJSON(out)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Probe the ATS, interview and email providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				probes := e.Connectivity(ctx)
				rows := make([]table.Row, 0, len(probes))
				for _, p := range probes {
					rows = append(rows, table.Row{p.Service, p.URL, p.Configured, p.Reachable, p.Status, p.LatencyMS, p.Error})
				}
				if err := printTable(probes, table.Row{"Service", "URL", "Configured", "Reachable", "Status", "Latency ms", "Error"}, rows); err != nil {
					return err
				}
				return engine.ProbeError(probes)
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token for the dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if username == "" {
				username = cfg.Auth.AdminUsername
			}
			token, exp, err := auth.NewService(cfg).Issue(username)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_at": exp.UTC()})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "token subject (default auth.admin_username)")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for auth.password_hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return fmt.Errorf("password required")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
