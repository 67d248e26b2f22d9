package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// adaptersCmd represents the adapters command
var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List Bluetooth adapters",
	Long: `Lists the adapters the daemon currently manages, with their
address, name, and power/discovery state.`,
	RunE: runAdapters,
}

var adaptersFormat string

func init() {
	adaptersCmd.Flags().StringVarP(&adaptersFormat, "format", "f", "table", "Output format (table, json)")
}

type adapterRow struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	Name         string `json:"name"`
	Powered      bool   `json:"powered"`
	Discoverable bool   `json:"discoverable"`
	Discovering  bool   `json:"discovering"`
	Devices      int    `json:"devices"`
}

func runAdapters(cmd *cobra.Command, args []string) error {
	if err := validateFormat(adaptersFormat); err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := s.callCtx()
	defer cancel()

	adapters, err := s.mgr.Adapters(ctx)
	if err != nil {
		return err
	}

	rows := make([]adapterRow, 0, len(adapters))
	for _, a := range adapters {
		rows = append(rows, adapterRow{
			ID:           a.ID(),
			Address:      a.Address(ctx),
			Name:         a.Name(ctx),
			Powered:      a.Powered(ctx),
			Discoverable: a.Discoverable(ctx),
			Discovering:  a.Discovering(ctx),
			Devices:      len(a.DevicePaths(ctx)),
		})
	}

	if s.outputFormat(cmd, adaptersFormat) == "json" {
		return printJSON(rows)
	}
	return displayAdaptersTable(rows)
}

func displayAdaptersTable(rows []adapterRow) error {
	if len(rows) == 0 {
		fmt.Println("No adapters found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tNAME\tPOWERED\tDISCOVERABLE\tDISCOVERING\tDEVICES")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Address, truncate(r.Name, 20), yesNo(r.Powered),
			yesNo(r.Discoverable), yesNo(r.Discovering), r.Devices)
	}
	return w.Flush()
}
