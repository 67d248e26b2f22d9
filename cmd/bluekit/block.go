package main

import (
	"github.com/spf13/cobra"
)

// blockCmd represents the block command
var blockCmd = &cobra.Command{
	Use:   "block <device-address>",
	Short: "Block a device",
	Long: `Sets the blocked flag on a device; the daemon rejects its
connection attempts from then on. --off lifts the block.`,
	Args: cobra.ExactArgs(1),
	RunE: runBlock,
}

var (
	blockAdapter string
	blockOff     bool
)

func init() {
	blockCmd.Flags().StringVar(&blockAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
	blockCmd.Flags().BoolVar(&blockOff, "off", false, "Unblock instead")
}

func runBlock(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cmd.SilenceUsage = true

	ctx, cancel := s.callCtx()
	defer cancel()

	dev, err := s.mgr.Adapter(blockAdapter).Device(args[0])
	if err != nil {
		return err
	}
	if err := dev.SetBlocked(ctx, !blockOff); err != nil {
		return err
	}

	if blockOff {
		printOK("Unblocked %s", dev.Address())
	} else {
		printOK("Blocked %s", dev.Address())
	}
	return nil
}
