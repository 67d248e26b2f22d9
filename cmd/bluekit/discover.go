package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bluekit/internal/btdb"
	"github.com/srg/bluekit/pkg/bluetooth"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover nearby devices",
	Long: `Drives one discovery session on an adapter and displays the devices
the daemon reported, including their names, addresses, and signal strength.

Allow, block, and service filters narrow the reports; --watch keeps the
session open and live-updates the table until interrupted.`,
	RunE: runDiscover,
}

var (
	discoverAdapter   string
	discoverDuration  time.Duration
	discoverFormat    string
	discoverServices  []string
	discoverAllowList []string
	discoverBlockList []string
	discoverWatch     bool
)

func init() {
	discoverCmd.Flags().StringVar(&discoverAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
	discoverCmd.Flags().DurationVarP(&discoverDuration, "duration", "d", 0, "Discovery duration (default from config)")
	discoverCmd.Flags().StringVarP(&discoverFormat, "format", "f", "table", "Output format (table, json)")
	discoverCmd.Flags().StringSliceVarP(&discoverServices, "service", "s", nil, "Only show devices advertising these service UUIDs")
	discoverCmd.Flags().StringSliceVar(&discoverAllowList, "allow", nil, "Only show devices with these addresses")
	discoverCmd.Flags().StringSliceVar(&discoverBlockList, "block", nil, "Hide devices with these addresses")
	discoverCmd.Flags().BoolVarP(&discoverWatch, "watch", "w", false, "Keep discovering and live-update the table")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := validateFormat(discoverFormat); err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cmd.SilenceUsage = true

	opts := &bluetooth.DiscoverOptions{
		Duration:     s.cfg.DiscoveryDuration,
		AllowList:    discoverAllowList,
		BlockList:    discoverBlockList,
		ServiceUUIDs: discoverServices,
	}
	if discoverDuration > 0 {
		opts.Duration = discoverDuration
	}
	if discoverWatch {
		// Watch mode discovers until interrupted
		opts.Duration = 24 * time.Hour
		return runDiscoverWatch(s.mgr.Adapter(discoverAdapter), opts, s.log)
	}

	format := s.outputFormat(cmd, discoverFormat)
	return runDiscoverOnce(s.mgr.Adapter(discoverAdapter), opts, format, s.log)
}

func runDiscoverOnce(adapter *bluetooth.Adapter, opts *bluetooth.DiscoverOptions, format string, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, stopping discovery...")
		cancel()
	}()

	// Collect report details on the side; the result map has no RSSI
	sightings := make(map[string]discoverySighting)
	drainStop := make(chan struct{})
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		events := adapter.DiscoveryEvents()
		for {
			select {
			case <-drainStop:
				return
			case ev := <-events:
				if ev.Type == bluetooth.EventLost {
					continue
				}
				sightings[ev.Address] = discoverySighting{rssi: ev.RSSI, lastSeen: time.Now()}
			}
		}
	}()

	var progressCb bluetooth.ProgressCallback
	if isTTY() {
		progress := NewCountdownProgressPrinter("Discovering devices", "Discovering", opts.Duration, "Processing results")
		progress.Start()
		defer progress.Stop()
		progressCb = progress.Callback()
	}

	devices, err := adapter.Discover(ctx, opts, progressCb)
	close(drainStop)
	<-drainDone
	if err != nil {
		logger.WithError(err).Error("Discovery failed")
		return err
	}

	if format == "json" {
		return printJSON(sortedDeviceInfos(devices))
	}
	return displayDiscoveredTable(devices, sightings)
}

// discoverySighting pairs the latest report details with the snapshot the
// result table renders.
type discoverySighting struct {
	rssi     int16
	lastSeen time.Time
}

func runDiscoverWatch(adapter *bluetooth.Adapter, opts *bluetooth.DiscoverOptions, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, stopping discovery...")
		cancel()
	}()

	// Collect events before the session starts so no report is missed
	events := adapter.DiscoveryEvents()
	sightings := make(map[string]discoverySighting)
	results := make(map[string]bluetooth.DeviceInfo)

	type sessionEnd struct {
		devices map[string]bluetooth.DeviceInfo
		err     error
	}
	endCh := make(chan sessionEnd, 1)
	go func() {
		devices, err := adapter.Discover(ctx, opts, nil)
		endCh <- sessionEnd{devices, err}
	}()

	redraw := time.NewTicker(time.Second)
	defer redraw.Stop()

	finish := func(end sessionEnd) error {
		if end.err != nil && !errors.Is(end.err, context.Canceled) && !errors.Is(end.err, context.DeadlineExceeded) {
			return end.err
		}
		// The session snapshot is authoritative; it restores reports the
		// drop-oldest event buffer may have shed
		if end.devices != nil {
			results = end.devices
		}
		clearScreen()
		return displayDiscoveredTable(results, sightings)
	}

	for {
		select {
		case <-ctx.Done():
			// Let the session close down before rendering the final table
			return finish(<-endCh)

		case end := <-endCh:
			return finish(end)

		case ev := <-events:
			switch ev.Type {
			case bluetooth.EventNew, bluetooth.EventUpdated:
				results[ev.Address] = ev.Device.Info()
				sightings[ev.Address] = discoverySighting{rssi: ev.RSSI, lastSeen: time.Now()}
			case bluetooth.EventLost:
				delete(results, ev.Address)
				delete(sightings, ev.Address)
			}

		case <-redraw.C:
			clearScreen()
			if err := displayDiscoveredTable(results, sightings); err != nil {
				logger.WithError(err).Warn("Table render failed")
			}
		}
	}
}

func sortedDeviceInfos(devices map[string]bluetooth.DeviceInfo) []bluetooth.DeviceInfo {
	infos := make([]bluetooth.DeviceInfo, 0, len(devices))
	for _, info := range devices {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Address < infos[j].Address })
	return infos
}

func displayDiscoveredTable(devices map[string]bluetooth.DeviceInfo, sightings map[string]discoverySighting) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tPAIRED\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, info := range sortedDeviceInfos(devices) {
		services := make([]string, 0, len(info.UUIDs))
		for _, u := range info.UUIDs {
			services = append(services, btdb.ShortName(u))
		}

		rssi, lastSeen := "-", "-"
		if s, ok := sightings[info.Address]; ok {
			rssi = fmt.Sprintf("%d dBm", s.rssi)
			lastSeen = fmt.Sprintf("%s ago", time.Since(s.lastSeen).Truncate(time.Second))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Address, truncate(displayName(info), 24), rssi, yesNo(info.Paired),
			truncate(strings.Join(services, ","), 30), lastSeen)
	}
	return w.Flush()
}
