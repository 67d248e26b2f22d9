package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/bluekit/internal/btdb"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <device-address>",
	Short: "Show a device's properties",
	Long: `Fetches and displays the daemon's property snapshot for one device.
Service UUIDs are annotated with their well-known profile names.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

var (
	infoAdapter string
	infoFormat  string
)

func init() {
	infoCmd.Flags().StringVar(&infoAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", "table", "Output format (table, json)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	if err := validateFormat(infoFormat); err != nil {
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

	dev, err := s.mgr.Adapter(infoAdapter).Device(args[0])
	if err != nil {
		return err
	}
	if err := dev.Fetch(ctx); err != nil {
		return err
	}

	info := dev.Info()
	if s.outputFormat(cmd, infoFormat) == "json" {
		return printJSON(info)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Address\t%s\n", info.Address)
	fmt.Fprintf(w, "Name\t%s\n", info.Name)
	fmt.Fprintf(w, "Alias\t%s\n", info.Alias)
	if info.Icon != "" {
		fmt.Fprintf(w, "Icon\t%s\n", info.Icon)
	}
	if info.Class != 0 {
		fmt.Fprintf(w, "Class\t0x%06x\n", info.Class)
	}
	fmt.Fprintf(w, "Paired\t%s\n", yesNo(info.Paired))
	fmt.Fprintf(w, "Connected\t%s\n", yesNo(info.Connected))
	fmt.Fprintf(w, "Trusted\t%s\n", yesNo(info.Trusted))
	fmt.Fprintf(w, "Blocked\t%s\n", yesNo(info.Blocked))
	if info.LegacyPairing {
		fmt.Fprintf(w, "LegacyPairing\t%s\n", yesNo(info.LegacyPairing))
	}
	for i, uuid := range info.UUIDs {
		label := "UUIDs"
		if i > 0 {
			label = ""
		}
		fmt.Fprintf(w, "%s\t%s\n", label, btdb.Annotate(uuid))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !info.Connected {
		fmt.Println(strings.Repeat("-", 40))
		fmt.Println("Device is not connected; values reflect the daemon's last knowledge")
	}
	return nil
}
