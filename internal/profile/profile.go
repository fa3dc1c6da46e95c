package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the taskgraph engine and its server.
type Profile struct {
	Mode        string
	Addr        string
	UNIXSock    string
	Data        string
	Driver      string
	DSN         string
	InstanceURL string
	Version     string
	Port        int

	// TelegramBotToken authenticates the Notifier's Telegram channel. Empty
	// disables the Telegram notifier in favor of the in-memory fake.
	TelegramBotToken string

	// SchedulerTick is the interval between Scheduler worker ticks.
	SchedulerTick time.Duration
	// SchedulerBatchSize bounds how many due ScheduledActions one tick claims.
	SchedulerBatchSize int
	// SchedulerReaperAfter is how long a row may sit in `processing` before
	// the reaper resets it back to `pending`.
	SchedulerReaperAfter time.Duration
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultDuration returns environment variable value parsed as a
// duration, or the default value.
func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. The Telegram bot
// token falls back to the value already set on p (e.g. by cobra/viper flag
// binding); the scheduler settings fall back to fixed defaults (60s tick,
// batch size 100, 10m reaper bound), replacing any value already on p.
func (p *Profile) FromEnv() {
	p.TelegramBotToken = getEnvOrDefault("TASKGRAPH_TELEGRAM_BOT_TOKEN", p.TelegramBotToken)
	p.SchedulerTick = getEnvOrDefaultDuration("TASKGRAPH_SCHEDULER_TICK", 60*time.Second)
	p.SchedulerBatchSize = getEnvOrDefaultInt("TASKGRAPH_SCHEDULER_BATCH_SIZE", 100)
	p.SchedulerReaperAfter = getEnvOrDefaultDuration("TASKGRAPH_SCHEDULER_REAPER_AFTER", 10*time.Minute)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes Mode and rejects unknown drivers. For postgres it only
// requires a DSN; for sqlite it resolves Data, checks that the data directory
// exists, and derives the DSN from it when unset.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported driver %q: must be postgres or sqlite", p.Driver)
	}

	if p.Driver == "postgres" {
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
		return nil
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "taskgraph")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", "data", p.Data, "error", err)
					return err
				}
			}
		} else {
			p.Data = "/var/opt/taskgraph"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", "data", p.Data, "error", err)
		return err
	}
	p.Data = dataDir

	if p.DSN == "" {
		dbFile := fmt.Sprintf("taskgraph_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
