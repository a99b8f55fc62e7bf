// Command ems-server is the session-server daemon (spec.md §4.F, §6
// "CLI (server)"): a long-running FIFO rendezvous server admitting up
// to MaxSessions concurrent clients against one shared in-memory
// Store.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/ems/internal/audit"
	"github.com/mistakeknot/ems/internal/command"
	"github.com/mistakeknot/ems/internal/config"
	"github.com/mistakeknot/ems/internal/ems"
	"github.com/mistakeknot/ems/internal/monitor"
	emsserver "github.com/mistakeknot/ems/internal/server"
	"github.com/mistakeknot/ems/internal/session"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "ems-server <server_pipe_path> [access_delay_us]",
		Short:        "ems-server - Event Management Service session daemon",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, args)
		},
	}
	root.AddCommand(initCmd())
	root.PersistentFlags().StringVar(&configPath, "config", "ems.yaml", "path to the server's YAML config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ems-server:", err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "write a default ems.yaml if one does not already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Bootstrap(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("wrote default config to %s: %+v\n", configPath, cfg)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "ems.yaml", "path to write")
	return cmd
}

func runServer(configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	cfg.ServerPipe = args[0]
	if len(args) == 2 {
		us, err := parseUint(args[1])
		if err != nil {
			return fmt.Errorf("access_delay_us: %w", err)
		}
		cfg.AccessDelayUs = us
	}

	store := ems.New()
	if err := store.Initialize(cfg.AccessDelay()); err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	auditLog, err := audit.Open(256)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	defer auditLog.Close()

	mon := monitor.New()

	srv, err := session.New(session.Config{
		ServerPipe:     cfg.ServerPipe,
		MaxSessions:    cfg.MaxSessions,
		Store:          store,
		Recorder:       fanoutRecorder{auditLog, mon},
		ActiveSessions: mon.SetActiveSessions,
	})
	if err != nil {
		return fmt.Errorf("session server: %w", err)
	}

	var monitorSrv *emsserver.Server
	if cfg.MonitorAddr != "" {
		monitorSrv, err = emsserver.New(emsserver.Config{
			Addr:       cfg.MonitorAddr,
			SocketPath: cfg.MonitorSocket,
			Handler:    mon.Handler(),
		})
		if err != nil {
			return fmt.Errorf("monitor server: %w", err)
		}
		go func() {
			log.Printf("ems-server monitor listening on %s", cfg.MonitorAddr)
			if cfg.MonitorSocket != "" {
				log.Printf("ems-server monitor also listening on unix:%s", cfg.MonitorSocket)
			}
			if err := monitorSrv.Start(); err != nil && err != http.ErrServerClosed {
				log.Printf("monitor server: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGUSR1)
	go func() {
		for s := range sig {
			switch s {
			case syscall.SIGUSR1:
				if err := srv.Dump(os.Stdout); err != nil {
					log.Printf("dump: %v", err)
				}
				log.Printf("-- recent audit entries (breaker=%s) --", auditLog.BreakerState())
				for _, e := range auditLog.Recent() {
					log.Printf("%s event=%d outcome=%s", e.Kind, e.EventID, e.Outcome)
				}
			case syscall.SIGINT:
				log.Println("shutting down...")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if monitorSrv != nil {
					_ = monitorSrv.Shutdown(ctx)
				}
				if err := srv.Shutdown(ctx); err != nil {
					log.Printf("session shutdown: %v", err)
				}
				os.Exit(0)
			}
		}
	}()

	log.Printf("ems-server listening on %s (max_sessions=%d)", cfg.ServerPipe, cfg.MaxSessions)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	select {} // the signal goroutine above calls os.Exit on SIGINT
}

func parseUint(s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid non-negative integer %q", s)
	}
	return int(n), nil
}

// fanoutRecorder fans a single command outcome out to both the audit
// log and the live monitor.
type fanoutRecorder struct {
	audit *audit.Log
	mon   *monitor.Monitor
}

func (f fanoutRecorder) Record(eventID uint32, hasEvent bool, kind command.Kind, outcome string) {
	f.audit.Record(eventID, hasEvent, kind, outcome)
	f.mon.Record(eventID, hasEvent, kind, outcome)
}
