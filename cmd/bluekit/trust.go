package main

import (
	"github.com/spf13/cobra"
)

// trustCmd represents the trust command
var trustCmd = &cobra.Command{
	Use:   "trust <device-address>",
	Short: "Mark a device as trusted",
	Long: `Sets the trusted flag on a device, letting it reconnect without
authorization. --off removes the trust again.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrust,
}

var (
	trustAdapter string
	trustOff     bool
)

func init() {
	trustCmd.Flags().StringVar(&trustAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
	trustCmd.Flags().BoolVar(&trustOff, "off", false, "Remove trust instead")
}

func runTrust(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cmd.SilenceUsage = true

	ctx, cancel := s.callCtx()
	defer cancel()

	dev, err := s.mgr.Adapter(trustAdapter).Device(args[0])
	if err != nil {
		return err
	}
	if err := dev.SetTrusted(ctx, !trustOff); err != nil {
		return err
	}

	if trustOff {
		printOK("Removed trust from %s", dev.Address())
	} else {
		printOK("Trusted %s", dev.Address())
	}
	return nil
}
