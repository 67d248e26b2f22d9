package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var okMark = color.New(color.FgGreen).SprintFunc()

// isTTY reports whether stdout is a terminal. Progress spinners and
// screen clears are suppressed when output is piped.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// printOK prints a confirmation line for a completed operation.
func printOK(format string, args ...any) {
	fmt.Printf("%s %s\n", okMark("ok"), fmt.Sprintf(format, args...))
}

// validateFormat rejects anything but the two supported output formats.
func validateFormat(format string) error {
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clearScreen() {
	if !isTTY() {
		return
	}
	fmt.Fprint(os.Stdout, "\033[2J\033[H")
}
