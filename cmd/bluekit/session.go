package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bluekit/internal/bus"
	godbus "github.com/srg/bluekit/internal/bus/go-dbus"
	"github.com/srg/bluekit/pkg/bluetooth"
	"github.com/srg/bluekit/pkg/config"
)

// connectBus dials the configured bus. Tests swap it for a scripted one.
var connectBus = func(cfg *config.Config, logger *logrus.Logger) (bus.Connection, error) {
	switch cfg.Bus {
	case config.BusSystem:
		return godbus.ConnectSystem(cfg.Service, logger)
	case config.BusSession:
		return godbus.ConnectSession(cfg.Service, logger)
	default:
		return godbus.Connect(cfg.Bus, cfg.Service, logger)
	}
}

// session bundles what every command needs: config, logger, bus
// connection, and the manager on top of it.
type session struct {
	cfg  *config.Config
	log  *logrus.Logger
	conn bus.Connection
	mgr  *bluetooth.Manager
}

// newSession loads configuration, then connects the bus and builds the
// manager on top. The caller must Close it.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	conn, err := connectBus(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", cfg.Bus, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
	defer cancel()
	mgr, err := bluetooth.NewManager(ctx, conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &session{cfg: cfg, log: logger, conn: conn, mgr: mgr}, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if busFlag, _ := cmd.Flags().GetString("bus"); busFlag != "" {
		cfg.Bus = busFlag
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// callCtx returns a context bounded by the configured per-call timeout.
func (s *session) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.CallTimeout)
}

// outputFormat resolves the effective output format: the --format flag
// when given, the configured default otherwise.
func (s *session) outputFormat(cmd *cobra.Command, flagValue string) string {
	if cmd.Flags().Changed("format") {
		return flagValue
	}
	return s.cfg.OutputFormat
}

// adapter resolves the --adapter flag; empty means the daemon's default.
func (s *session) adapter(cmd *cobra.Command) *bluetooth.Adapter {
	id, _ := cmd.Flags().GetString("adapter")
	return s.mgr.Adapter(id)
}

func (s *session) Close() {
	s.mgr.Close()
	if err := s.conn.Close(); err != nil {
		s.log.WithError(err).Debug("Bus close failed")
	}
}
