package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/cramplan/internal/api"
	"github.com/kalambet/cramplan/internal/config"
	"github.com/kalambet/cramplan/internal/schedule"
	"github.com/kalambet/cramplan/internal/session"
	"github.com/kalambet/cramplan/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cramplan HTTP and MCP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		noMCP, _ := cmd.Flags().GetBool("no-mcp")
		return runServer(!noMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running cramplan server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cramplan status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("no-mcp", false, "do not serve MCP on stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "cramplan.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(serveMCP bool) error {
	fmt.Fprintf(os.Stderr, "cramplan version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	if ok, _ := newAPIClient(cfg.Server.Port).healthy(context.Background()); ok {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("cramplan is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("cramplan is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	guard := api.NewGuard()
	appDeps := api.AppDeps{
		Session:   a.session,
		Store:     a.store,
		Materials: a.loader,
		Guard:     guard,
	}
	mcpDeps := api.MCPDeps{
		Session:   a.session,
		Materials: a.loader,
		Guard:     guard,
	}
	if a.planner != nil {
		appDeps.Planner = a.planner
		mcpDeps.Planner = a.planner
		slog.Info("generation enabled", "model", cfg.GenAI.Model)
	} else {
		slog.Warn("no Gemini API key configured, study plan and practice test are disabled")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewAppHandler(appDeps),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if serveMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(mcpDeps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "cramplan listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("cramplan is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop cramplan (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to cramplan (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg.Server.Port)
	running, code := client.healthy(ctx)
	switch {
	case running:
		printStatus("Server", "running on port %d", cfg.Server.Port)
	case code != 0:
		printStatus("Server", "error (HTTP %d)", code)
	default:
		printStatus("Server", "stopped")
	}

	printStatus("Model", "%s", cfg.GenAI.Model)
	if cfg.GenAI.APIKey != "" {
		printStatus("API key", "set")
	} else {
		printStatus("API key", "not set")
	}

	st, err := scheduleStatus(ctx, client, running, cfg.Storage.DataDir)
	if err != nil {
		printStatus("Schedule", "unavailable (%v)", err)
	} else if st.IsZero() {
		printStatus("Schedule", "none")
	} else {
		printStatus("Test date", "%s", st.TestDate)
		printStatus("Schedule", "%s", progressLabel(st.Progress()))
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// scheduleStatus asks the running server for the schedule, falling back to
// reading the state slot directly.
func scheduleStatus(ctx context.Context, client *apiClient, running bool, dataDir string) (schedule.State, error) {
	if running {
		resp, err := client.get(ctx, "/schedule")
		if err == nil {
			var st schedule.State
			if err := decodeJSON(resp, &st); err == nil {
				return st, nil
			}
		}
	}

	store, err := storage.Open(dataDir)
	if err != nil {
		return schedule.State{}, err
	}
	defer store.Close()
	return session.NewManager(store).Load()
}
