package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/taskgraph/authz"
	"github.com/hrygo/taskgraph/engine"
	"github.com/hrygo/taskgraph/engine/actioneval"
	"github.com/hrygo/taskgraph/internal/metrics"
	"github.com/hrygo/taskgraph/internal/profile"
	"github.com/hrygo/taskgraph/internal/version"
	"github.com/hrygo/taskgraph/notifier"
	"github.com/hrygo/taskgraph/notifier/memnotify"
	notifiertelegram "github.com/hrygo/taskgraph/notifier/telegram"
	"github.com/hrygo/taskgraph/plugin/chat_apps/channels/telegram"
	"github.com/hrygo/taskgraph/scheduler"
	"github.com/hrygo/taskgraph/server"
	"github.com/hrygo/taskgraph/store"
	"github.com/hrygo/taskgraph/store/db"
	"github.com/hrygo/taskgraph/taskgraph"
)

var rootCmd = &cobra.Command{
	Use:   "taskgraph",
	Short: "A task-orchestration core: a directed dependency graph engine over tasks with reactive status propagation.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:        viper.GetString("mode"),
			Addr:        viper.GetString("addr"),
			Port:        viper.GetInt("port"),
			UNIXSock:    viper.GetString("unix-sock"),
			Data:        viper.GetString("data"),
			Driver:      viper.GetString("driver"),
			DSN:         viper.GetString("dsn"),
			InstanceURL: viper.GetString("instance-url"),
			Version:     version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())

		dbDriver, err := db.NewDBDriver(ctx, instanceProfile)
		if err != nil {
			cancel()
			printDatabaseError(err, instanceProfile)
			slog.Error("failed to create db driver", "error", err)
			return
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		checker := authz.NewChecker(storeInstance)
		graphLoader := taskgraph.NewLoader(storeInstance)
		metricsExporter := metrics.New(metrics.DefaultConfig())

		notifyTarget := newNotifier(instanceProfile)

		// eval is built before the Engine that owns it; engine.New wires eval's
		// StatusChanger back to the Engine once it exists, avoiding an
		// engine<->actioneval import cycle.
		eval := actioneval.New(storeInstance, notifyTarget, metricsExporter)
		taskEngine := engine.New(storeInstance, checker, graphLoader, eval, metricsExporter)
		sched := scheduler.New(storeInstance, eval, notifyTarget, metricsExporter, instanceProfile)

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, taskEngine, sched, metricsExporter)
		if err != nil {
			cancel()
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		// The default signal sent by the `kill` command is SIGTERM,
		// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes.
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
				cancel()
				return
			}
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		// Wait for CTRL-C.
		<-ctx.Done()
	},
}

// newNotifier builds the Telegram Notifier when a bot token is configured,
// falling back to the in-memory fake otherwise (spec §1: the Telegram
// transport and any chat-id/credential mapping are external collaborators;
// here the engine's own integer user id is used as the chat id until a real
// credential store is wired in front of this process).
func newNotifier(p *profile.Profile) notifier.Notifier {
	if p.TelegramBotToken == "" {
		slog.Warn("taskgraph: TASKGRAPH_TELEGRAM_BOT_TOKEN not set, using in-memory notifier")
		return memnotify.New()
	}

	channel, err := telegram.NewTelegramChannel(&telegram.TelegramConfig{BotToken: p.TelegramBotToken})
	if err != nil {
		slog.Error("taskgraph: failed to initialize telegram channel, falling back to in-memory notifier", "error", err)
		return memnotify.New()
	}

	resolve := func(_ context.Context, userID int32) (string, error) {
		return strconv.Itoa(int(userID)), nil
	}
	return notifiertelegram.New(channel, notifiertelegram.Config{Resolve: resolve})
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28081, "port of server")
	rootCmd.PersistentFlags().String("unix-sock", "", "path to the unix socket, overrides --addr and --port")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the public url of this taskgraph instance")

	for _, b := range []struct{ key, flag string }{
		{"mode", "mode"}, {"addr", "addr"}, {"port", "port"}, {"unix-sock", "unix-sock"},
		{"data", "data"}, {"driver", "driver"}, {"dsn", "dsn"}, {"instance-url", "instance-url"},
	} {
		if err := viper.BindPFlag(b.key, rootCmd.PersistentFlags().Lookup(b.flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("taskgraph")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("taskgraph %s started successfully!\n", p.Version)

	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)

	if len(p.UNIXSock) == 0 {
		if len(p.Addr) == 0 {
			fmt.Printf("Server running on port %d\n", p.Port)
		} else {
			fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
		}
	} else {
		fmt.Printf("Server running on unix socket: %s\n", p.UNIXSock)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides user-friendly error messages for database connection issues.
func printDatabaseError(err error, p *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "PostgreSQL is not reachable.")
		if p.Driver == "postgres" {
			fmt.Fprintln(os.Stderr, "  Start it, or switch to sqlite for local development:")
			fmt.Fprintln(os.Stderr, "  export TASKGRAPH_DRIVER=sqlite")
		}
	case strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "Add ?sslmode=disable to your DSN if your PostgreSQL has no TLS configured.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "Check the credentials in TASKGRAPH_DSN.")
	case strings.Contains(errMsg, "does not exist"):
		fmt.Fprintln(os.Stderr, "The target database does not exist; create it first.")
	default:
		fmt.Fprintln(os.Stderr, errMsg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
