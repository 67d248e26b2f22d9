package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/bluekit/pkg/bluetooth"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices an adapter knows",
	Long: `Lists the devices the daemon has registered under an adapter,
with pairing and connection state.`,
	RunE: runDevices,
}

var (
	devicesAdapter string
	devicesFormat  string
)

func init() {
	devicesCmd.Flags().StringVar(&devicesAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "Output format (table, json)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	if err := validateFormat(devicesFormat); err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cmd.SilenceUsage = true

	ctx, cancel := s.callCtx()
	defer cancel()

	adapter := s.mgr.Adapter(devicesAdapter)
	devices, err := adapter.Devices(ctx)
	if err != nil {
		return err
	}

	infos := make([]bluetooth.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if err := d.Fetch(ctx); err != nil {
			s.log.WithField("address", d.Address()).WithError(err).Warn("Device snapshot unavailable")
		}
		infos = append(infos, d.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Address < infos[j].Address })

	if s.outputFormat(cmd, devicesFormat) == "json" {
		return printJSON(infos)
	}
	return displayDevicesTable(infos)
}

func displayDevicesTable(infos []bluetooth.DeviceInfo) error {
	if len(infos) == 0 {
		fmt.Println("No devices known")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tPAIRED\tCONNECTED\tTRUSTED\tBLOCKED")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Address, truncate(displayName(info), 24), yesNo(info.Paired),
			yesNo(info.Connected), yesNo(info.Trusted), yesNo(info.Blocked))
	}
	return w.Flush()
}

// displayName prefers the user-set alias over the advertised name.
func displayName(info bluetooth.DeviceInfo) string {
	if info.Alias != "" && info.Alias != info.Name {
		return info.Alias
	}
	return info.Name
}
