package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "TaskFlow CLI",
	Long: `TaskFlow keeps a personal to-do list in a workspace and can summarize the
pending items with a language model and post the summary to Slack.
- Tasks: add them, toggle them complete, delete them; newest first.
- Summary: 'taskflow summarize' sends a short summary of pending work to the
  Slack incoming webhook set in TASKFLOW_SLACK_WEBHOOK_URL (or SLACK_WEBHOOK_URL).
- Serve: 'taskflow serve' exposes the same operations as a JSON API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(newLogger(viper.GetString("log-level"), viper.GetString("log-file"), cmd.ErrOrStderr()))
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	envPath := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: read %s: %v\n", envPath, err)
	}
	bindEnv(viper.GetViper())
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("TASKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("slack-webhook-url", "TASKFLOW_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL")
	_ = v.BindEnv("anthropic-api-key", "TASKFLOW_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai-api-key", "TASKFLOW_OPENAI_API_KEY", "OPENAI_API_KEY")
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write JSON logs to this file (rotated)")
	flags.String("summary-provider", "", "summary provider (none, anthropic, openai)")
	flags.String("summary-model", "", "model name for the summary provider")
	for _, name := range []string{"workspace", "json", "log-level", "log-file", "summary-provider", "summary-model"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(toggleCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(summarizeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.AddTask(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func listCmd() *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks := e.Store.List()
				if pending {
					tasks = e.Store.Pending()
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				if len(tasks) == 0 {
					fmt.Println("No tasks yet. Add some!")
					return nil
				}
				renderTasks(os.Stdout, tasks)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only pending tasks")
	return cmd
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Toggle a task between pending and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, found, err := e.ToggleTask(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("task %s not found", args[0])
				}
				return printTask(t)
			})
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				found, err := e.DeleteTask(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("task %s not found", args[0])
				}
				fmt.Println("Task deleted.")
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				st := e.Status()
				if viper.GetBool("json") {
					return printJSON(st)
				}
				switch {
				case st.AllCompleted:
					fmt.Println("All tasks completed! Nothing to summarize.")
				case st.Pending > 0:
					fmt.Printf("%d pending task(s) of %d.\n", st.Pending, st.Total)
				default:
					fmt.Println("No tasks yet. Add some!")
				}
				return nil
			})
		},
	}
}

func summarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Summarize pending tasks and send the summary to Slack",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res := e.Summarize(ctx)
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Summary != "" {
					fmt.Println(res.Summary)
				}
				if !res.Success {
					return errors.New(res.Message)
				}
				fmt.Println(res.Message)
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var limit int
	var follow bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow && interval <= 0 {
				return fmt.Errorf("--interval must be positive (got %s)", interval)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.TailEvents(ctx, limit)
				if err != nil {
					return err
				}
				printEvents(items)
				if !follow {
					return nil
				}
				var cursor int64
				if len(items) > 0 {
					cursor = items[len(items)-1].ID
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					items, err := e.Repo.EventsAfter(ctx, 100, cursor)
					if err != nil {
						return err
					}
					if len(items) == 0 {
						continue
					}
					printEvents(items)
					cursor = items[len(items)-1].ID
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new events")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval with --follow")
	return cmd
}

func printEvents(items []domain.Event) {
	if viper.GetBool("json") {
		for _, evt := range items {
			b, _ := json.Marshal(evt)
			fmt.Println(string(b))
		}
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
	for _, evt := range items {
		tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityID, evt.Payload})
	}
	tw.Render()
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change configuration",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveConfig(viper.GetViper(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			c = c.Redacted()
			if viper.GetBool("json") {
				return printJSON(c)
			}
			renderConfig(os.Stdout, c)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default taskflow.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "set-webhook <url>",
		Short: "Store the Slack webhook URL in the workspace .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			probe := config.Default()
			probe.Slack.WebhookURL = strings.TrimSpace(args[0])
			if err := probe.Validate(); err != nil {
				return err
			}
			envPath := filepath.Join(workspace, ".env")
			if err := setEnvValue(envPath, "TASKFLOW_SLACK_WEBHOOK_URL", probe.Slack.WebhookURL); err != nil {
				return err
			}
			fmt.Printf("Set TASKFLOW_SLACK_WEBHOOK_URL in %s\n", envPath)
			return nil
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if !cmd.Flags().Changed("addr") && e.Config.Server.Addr != "" {
					addr = e.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && e.Config.Server.BasePath != "" {
					basePath = e.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Logger: e.Logger})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				if !e.Config.SlackConfigured() {
					slog.Warn("slack webhook URL not set; summaries will report a configuration error")
				}
				fmt.Printf("Serving TaskFlow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := resolveConfig(viper.GetViper(), workspace)
	if err != nil {
		return err
	}
	e, err := engine.Open(ctx, workspace, cfg, engine.Options{Logger: slog.Default()})
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

// resolveConfig layers environment and flags over the workspace taskflow.yml.
func resolveConfig(v *viper.Viper, workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if url := strings.TrimSpace(v.GetString("slack-webhook-url")); url != "" {
		cfg.Slack.WebhookURL = url
	}
	if p := strings.TrimSpace(v.GetString("summary-provider")); p != "" {
		cfg.Summary.Provider = p
	}
	if m := strings.TrimSpace(v.GetString("summary-model")); m != "" {
		cfg.Summary.Model = m
	}
	if cfg.Summary.APIKey == "" {
		switch cfg.Summary.Provider {
		case config.ProviderAnthropic:
			cfg.Summary.APIKey = v.GetString("anthropic-api-key")
		case config.ProviderOpenAI:
			cfg.Summary.APIKey = v.GetString("openai-api-key")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level, file string, stderr io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	sink := stderr
	if file != "" {
		sink = io.MultiWriter(stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: lvl}))
}

func renderTasks(w io.Writer, tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Done", "Task", "Created"})
	for _, t := range tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		tw.AppendRow(table.Row{t.ID, done, t.Text, t.CreatedAt.Local().Format(time.DateTime)})
	}
	tw.Render()
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	renderTasks(os.Stdout, []domain.Task{t})
	return nil
}

func renderConfig(w io.Writer, c *config.Config) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Key", "Value"})
	tw.AppendRows([]table.Row{
		{"slack.webhook_url", c.Slack.WebhookURL},
		{"slack.timeout", c.SlackTimeout()},
		{"summary.provider", c.Summary.Provider},
		{"summary.model", c.Summary.Model},
		{"summary.api_key", c.Summary.APIKey},
		{"summary.base_url", c.Summary.BaseURL},
		{"workflow.timeout", c.WorkflowTimeout()},
		{"server.addr", c.Server.Addr},
		{"server.base_path", c.Server.BasePath},
	})
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// setEnvValue upserts key in a dotenv file, keeping the other entries.
func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}
