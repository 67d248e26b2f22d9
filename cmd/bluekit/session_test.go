package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/internal/testutils"
	"github.com/srg/bluekit/pkg/config"
)

// sessionTestCommand mimics a command carrying the global flags.
func sessionTestCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("bus", "", "")
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(sessionTestCommand())
	require.NoError(t, err)

	assert.Equal(t, config.BusSystem, cfg.Bus)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
}

func TestLoadConfig_BusOverride(t *testing.T) {
	cmd := sessionTestCommand()
	require.NoError(t, cmd.Flags().Set("bus", "session"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, config.BusSession, cfg.Bus)
}

func TestLoadConfig_RejectsUnknownBus(t *testing.T) {
	cmd := sessionTestCommand()
	require.NoError(t, cmd.Flags().Set("bus", "bogus"))

	_, err := loadConfig(cmd)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid bus")
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bluekit.yaml")
	yaml := "log_level: debug\ncall_timeout: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cmd := sessionTestCommand()
	require.NoError(t, cmd.Flags().Set("config", path))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
	assert.Equal(t, config.BusSystem, cfg.Bus, "unset fields keep their defaults")
}

func TestNewSession_ConnectFailure(t *testing.T) {
	orig := connectBus
	defer func() { connectBus = orig }()
	connectBus = func(*config.Config, *logrus.Logger) (bus.Connection, error) {
		return nil, &bus.CallError{Op: "Hello", Err: bus.ErrUnavailable}
	}

	_, err := newSession(sessionTestCommand())

	require.Error(t, err)
	assert.ErrorIs(t, err, bus.ErrUnavailable)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestNewSession_ManagerFailureClosesBus(t *testing.T) {
	fake := testutils.NewFakeBus()
	fake.Install("/", "org.bluez.Manager").WithSubscribeError(&bus.CallError{
		Op:   "Subscribe",
		Path: "/",
		Err:  bus.ErrUnavailable,
	})

	orig := connectBus
	defer func() { connectBus = orig }()
	connectBus = func(*config.Config, *logrus.Logger) (bus.Connection, error) {
		return fake, nil
	}

	_, err := newSession(sessionTestCommand())
	require.Error(t, err)
	assert.ErrorIs(t, err, bus.ErrUnavailable)

	_, callErr := fake.Object("/", "org.bluez.Manager").Call(context.Background(), "Ping")
	assert.ErrorIs(t, callErr, bus.ErrClosed, "the connection MUST be closed when manager construction fails")
}

func TestOutputFormat_FlagOverridesConfig(t *testing.T) {
	s := &session{cfg: &config.Config{OutputFormat: config.OutputJSON}}

	cmd := &cobra.Command{}
	var format string
	cmd.Flags().StringVarP(&format, "format", "f", "table", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--format", "table"}))

	assert.Equal(t, "table", s.outputFormat(cmd, format))
}

func TestOutputFormat_ConfigDefault(t *testing.T) {
	s := &session{cfg: &config.Config{OutputFormat: config.OutputJSON}}

	cmd := &cobra.Command{}
	var format string
	cmd.Flags().StringVarP(&format, "format", "f", "table", "")
	require.NoError(t, cmd.Flags().Parse(nil))

	assert.Equal(t, config.OutputJSON, s.outputFormat(cmd, format))
}
