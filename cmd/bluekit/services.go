package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// servicesCmd represents the services command
var servicesCmd = &cobra.Command{
	Use:   "services <device-address> [pattern]",
	Short: "Discover a device's service records",
	Long: `Asks the daemon to run service discovery against a device and
displays the records it returns, keyed by record handle. An optional
pattern (UUID or profile string) narrows the search.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runServices,
}

var (
	servicesAdapter string
	servicesFormat  string
)

func init() {
	servicesCmd.Flags().StringVar(&servicesAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
	servicesCmd.Flags().StringVarP(&servicesFormat, "format", "f", "table", "Output format (table, json)")
}

func runServices(cmd *cobra.Command, args []string) error {
	if err := validateFormat(servicesFormat); err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cmd.SilenceUsage = true

	pattern := ""
	if len(args) == 2 {
		pattern = args[1]
	}

	dev, err := s.mgr.Adapter(servicesAdapter).Device(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := s.callCtx()
	defer cancel()

	var progressCb func(string)
	if isTTY() {
		progress := NewProgressPrinter(fmt.Sprintf("Discovering services of %s", dev.Address()), "Resolving", "Processing results")
		progress.Start()
		defer progress.Stop()
		progressCb = progress.Callback()
	}

	records, err := dev.DiscoverServices(ctx, pattern)
	if progressCb != nil {
		progressCb("Processing results")
	}
	if err != nil {
		return err
	}

	if s.outputFormat(cmd, servicesFormat) == "json" {
		return printJSON(records)
	}
	return displayServiceRecords(records)
}

func displayServiceRecords(records map[uint32]string) error {
	if len(records) == 0 {
		fmt.Println("No service records found")
		return nil
	}

	handles := make([]uint32, 0, len(records))
	for h := range records {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tRECORD")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, h := range handles {
		record := strings.Join(strings.Fields(records[h]), " ")
		fmt.Fprintf(w, "0x%05x\t%s\n", h, truncate(record, 70))
	}
	return w.Flush()
}
