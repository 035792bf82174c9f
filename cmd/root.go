package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/proctor/internal/logging"
	"github.com/andresmejia3/proctor/internal/store"
	"github.com/spf13/cobra"
)

var (
	// dbURL is the connection string for the enrollment registry
	dbURL string
	// logLevel is shared by every subcommand
	logLevel string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "proctor",
	Short:   "Real-time exam proctoring monitor",
	Long:    "Watches the candidate through the webcam and the desktop through the window manager, and ends the exam on the first violation.",
	Version: Version, // This enables the --version flag
}

// resolveDSN picks the registry connection string: --db, then PROCTOR_DB_URL, then POSTGRES_* parts.
func resolveDSN(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("PROCTOR_DB_URL"); env != "" {
		return env
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	// Fallback to local default if no env vars are present
	return "postgres://localhost:5432/proctor"
}

// openDB connects to the registry. Only commands that need it call this.
func openDB(ctx context.Context, dsn string) (*store.Store, error) {
	db, err := store.New(ctx, resolveDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// closeDB uses Background because the command context may already be cancelled by Ctrl+C.
func closeDB(db *store.Store) {
	if db != nil {
		db.Close(context.Background())
	}
}

// newLogger builds the structured logger for a command, falling back to info on a bad level.
func newLogger(level string) *slog.Logger {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  %v, using info\n", err)
	}
	return logging.New(lvl)
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: $PROCTOR_DB_URL, POSTGRES_* or postgres://localhost:5432/proctor)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}
