package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/bluekit/internal/bus"
)

// disconnectCmd represents the disconnect command
var disconnectCmd = &cobra.Command{
	Use:   "disconnect <device-address>",
	Short: "Disconnect a device",
	Long: `Asks the daemon to drop the connection to a device. The daemon
warns the device first, then disconnects a couple of seconds later.`,
	Args: cobra.ExactArgs(1),
	RunE: runDisconnect,
}

var disconnectAdapter string

func init() {
	disconnectCmd.Flags().StringVar(&disconnectAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cmd.SilenceUsage = true

	ctx, cancel := s.callCtx()
	defer cancel()

	adapter := s.mgr.Adapter(disconnectAdapter)
	dev, err := adapter.Device(args[0])
	if err != nil {
		return err
	}

	// Only devices the daemon already tracks can be disconnected; binding
	// through the listing avoids registering a brand-new device object
	devices, err := adapter.Devices(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, d := range devices {
		if d == dev {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("device %s: %w", dev.Address(), bus.ErrNotFound)
	}

	if err := dev.Bind(ctx); err != nil {
		return err
	}
	if err := dev.Disconnect(ctx); err != nil {
		return err
	}
	printOK("Disconnect requested for %s", dev.Address())
	return nil
}
