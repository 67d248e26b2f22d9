package main

import (
	"github.com/spf13/cobra"
)

// aliasCmd represents the alias command
var aliasCmd = &cobra.Command{
	Use:   "alias <device-address> <alias>",
	Short: "Set a device's local alias",
	Long: `Sets the name this machine uses for a device, overriding the name
the device advertises. An empty alias resets to the advertised name.`,
	Args: cobra.ExactArgs(2),
	RunE: runAlias,
}

var aliasAdapter string

func init() {
	aliasCmd.Flags().StringVar(&aliasAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
}

func runAlias(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cmd.SilenceUsage = true

	ctx, cancel := s.callCtx()
	defer cancel()

	dev, err := s.mgr.Adapter(aliasAdapter).Device(args[0])
	if err != nil {
		return err
	}
	if err := dev.SetAlias(ctx, args[1]); err != nil {
		return err
	}

	if args[1] == "" {
		printOK("Reset alias of %s", dev.Address())
	} else {
		printOK("Alias of %s set to %q", dev.Address(), args[1])
	}
	return nil
}
