package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/bluekit/internal/ring"
	"github.com/srg/bluekit/pkg/bluetooth"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [<device-address>]",
	Short: "Stream property changes",
	Long: `Streams property changes as the daemon reports them, one line per
change, until interrupted.

With a device address, the device's properties are watched. Without one,
the adapter's properties are watched along with adapters appearing,
disappearing, or changing default.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchAdapter string

// watchStreamBuffer bounds the print queue; the oldest line is dropped
// when the terminal cannot keep up.
const watchStreamBuffer = 256

func init() {
	watchCmd.Flags().StringVar(&watchAdapter, "adapter", "", "Adapter id (default: the daemon's default adapter)")
}

type watchLine struct {
	when   time.Time
	source string
	text   string
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	stream := ring.New[watchLine](watchStreamBuffer)
	bindCtx, bindCancel := s.callCtx()
	defer bindCancel()

	adapter := s.mgr.Adapter(watchAdapter)
	var target string

	if len(args) == 1 {
		dev, err := adapter.Device(args[0])
		if err != nil {
			return err
		}
		if err := dev.Fetch(bindCtx); err != nil {
			return err
		}
		target = dev.Address()
		defer dev.Watch(func(c bluetooth.Change) {
			stream.Send(watchLine{time.Now(), target, fmt.Sprintf("%s -> %v", c.Property, c.Value)})
		})()
		defer dev.OnDisconnectRequested(func() {
			stream.Send(watchLine{time.Now(), target, "disconnect requested by the daemon"})
		})()
	} else {
		if err := adapter.Fetch(bindCtx); err != nil {
			return err
		}
		target = adapter.ID()
		if target == "" {
			target = "default adapter"
		}
		defer adapter.Watch(func(c bluetooth.Change) {
			stream.Send(watchLine{time.Now(), target, fmt.Sprintf("%s -> %v", c.Property, c.Value)})
		})()
		defer s.mgr.WatchAdapters(func(ev bluetooth.AdapterEvent) {
			stream.Send(watchLine{time.Now(), "manager", formatAdapterEvent(ev)})
		})()
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", target)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped")
			return nil
		case line := <-stream.C():
			fmt.Printf("%s  %-18s %s\n", line.when.Format("15:04:05"), line.source, line.text)
		}
	}
}

func formatAdapterEvent(ev bluetooth.AdapterEvent) string {
	switch ev.Type {
	case bluetooth.AdapterEventAdded:
		return fmt.Sprintf("adapter added: %s", ev.Path)
	case bluetooth.AdapterEventRemoved:
		return fmt.Sprintf("adapter removed: %s", ev.Path)
	case bluetooth.AdapterEventDefaultChanged:
		return fmt.Sprintf("default adapter now %s", ev.Path)
	case bluetooth.AdapterEventAllRemoved:
		return "no adapters left"
	default:
		return fmt.Sprintf("adapter event %d: %s", ev.Type, ev.Path)
	}
}
