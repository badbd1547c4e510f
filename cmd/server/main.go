package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/0xkonsti/chat-go/pkg/crypto"
	"github.com/0xkonsti/chat-go/pkg/datastore"
	"github.com/0xkonsti/chat-go/pkg/logging"
	"github.com/0xkonsti/chat-go/pkg/model"
	"github.com/0xkonsti/chat-go/pkg/server"
	"github.com/0xkonsti/chat-go/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file (flags override it)")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP bind address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for /metrics (empty to disable)")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "Server heartbeat interval")

	createAdmin := flag.String("create-admin", "", "Create or promote an admin user with this name, then exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if *configPath != "" {
		fileCfg, err := server.LoadConfig(*configPath)
		if err != nil {
			slog.Error("load config", "err", err)
			os.Exit(1)
		}
		// Re-apply flags so they win over file values.
		cfg = fileCfg
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "addr":
				cfg.Addr = f.Value.String()
			case "db":
				cfg.DBPath = f.Value.String()
			case "metrics":
				cfg.MetricsAddr = f.Value.String()
			case "heartbeat":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					cfg.HeartbeatInterval = d
				}
			}
		})
	}

	st, err := datastore.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	// Bootstrap command: create/promote an admin and exit.
	if *createAdmin != "" {
		if err := bootstrapAdmin(st, *createAdmin); err != nil {
			slog.Error("create admin", "err", err)
			os.Exit(1)
		}
		return
	}

	srv := server.New(cfg, server.Dependencies{Store: st})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("signal received, shutting down", "signal", sig)
		srv.Shutdown()
	}()

	slog.Info("starting", "version", version.String())
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// bootstrapAdmin prompts for a password and writes an admin record to the
// store. Existing users are promoted and their credentials replaced.
func bootstrapAdmin(st *datastore.Store, name string) error {
	if err := model.ValidateUsername(name); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Password for admin %q: ", name)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if len(pw) == 0 {
		return fmt.Errorf("empty password")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	u := &model.User{
		Name:         name,
		PasswordHash: crypto.HashPassword(string(pw), salt),
		Salt:         salt,
		Level:        model.LevelAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.UpsertUser(u); err != nil {
		return err
	}
	fmt.Printf("admin %q ready\n", name)
	return nil
}
