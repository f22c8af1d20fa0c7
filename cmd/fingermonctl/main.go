// fingermonctl is the control CLI for fingermond.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"fingermon/internal/config"
	"fingermon/internal/ipc"
	"fingermon/internal/stats"
)

var (
	configPath = flag.String("config", "", "path to config file")
	socketPath = flag.String("socket", "", "daemon control socket (overrides config)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "status":
		cmdStatus()
	case "stats":
		cmdStats(flag.Args()[1:])
	case "history":
		cmdHistory(flag.Args()[1:])
	case "watch":
		cmdWatch()
	case "shutdown":
		cmdShutdown()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `fingermonctl - Control utility for fingermond

Usage: fingermonctl [options] <command> [args]

Commands:
  status            Show daemon status
  stats             Show current usage statistics
  history           Show per-day history
  watch             Stream live statistics until interrupted
  shutdown          Ask the daemon to exit
  help              Show this help message

Options:
  -config <path>    Path to config file
  -socket <path>    Daemon control socket (overrides config)`)
}

func connect() *ipc.Client {
	sock := *socketPath
	if sock == "" {
		path := *configPath
		if path == "" {
			path = config.ConfigPath()
		}
		cfg, err := config.NewLoader(path).Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		sock = cfg.IPC.SocketPath
	}

	client, err := ipc.Connect(sock, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot reach daemon at %s: %v\n", sock, err)
		fmt.Fprintln(os.Stderr, "Is fingermond running?")
		os.Exit(1)
	}
	return client
}

func cmdStatus() {
	client := connect()
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== fingermond Status ===")
	fmt.Println()
	fmt.Printf("Version:        %s\n", st.Version)
	fmt.Printf("Started:        %s\n", st.StartedAt.Format(time.RFC3339))
	fmt.Printf("Uptime:         %s\n", st.Uptime)
	if st.ListenerActive {
		fmt.Println("Input capture:  ACTIVE")
	} else {
		fmt.Println("Input capture:  INACTIVE")
	}
	fmt.Printf("Events dropped: %d\n", st.EventsDropped)
	fmt.Printf("State file:     %s\n", st.StatePath)
	if !st.LastCheckpoint.IsZero() {
		fmt.Printf("Last save:      %s\n", st.LastCheckpoint.Format(time.RFC3339))
	}
	if st.Healthy {
		fmt.Println("Health:         OK")
	} else {
		fmt.Printf("Health:         DEGRADED (%s)\n", st.HealthDetail)
	}
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print raw JSON")
	topN := fs.Int("top", 10, "number of top keys to show")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	snap, err := client.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		data, _ := json.MarshalIndent(snap, "", "  ")
		fmt.Println(string(data))
		return
	}

	printSnapshot(snap, *topN)
}

func printSnapshot(snap *stats.Snapshot, topN int) {
	fmt.Println("=== Usage Statistics ===")
	fmt.Println()
	fmt.Printf("Session:        %s\n", snap.SessionDuration().Round(time.Second))
	fmt.Printf("Keystrokes:     %d\n", snap.TotalKeystrokes)
	fmt.Printf("Typing speed:   %.1f wpm\n", snap.WPM)
	if !snap.LastKeypress.IsZero() {
		fmt.Printf("Last keypress:  %s ago\n", time.Since(snap.LastKeypress).Round(time.Second))
	}
	fmt.Println()

	var clicks uint64
	for _, n := range snap.MouseClicks {
		clicks += n
	}
	fmt.Printf("Mouse clicks:   %d", clicks)
	if clicks > 0 {
		fmt.Print(" (")
		first := true
		for _, b := range []string{"Left", "Right", "Middle", "Other"} {
			if n := snap.MouseClicks[b]; n > 0 {
				if !first {
					fmt.Print(", ")
				}
				fmt.Printf("%s %d", b, n)
				first = false
			}
		}
		fmt.Print(")")
	}
	fmt.Println()
	fmt.Printf("Mouse travel:   %.0f px\n", snap.MouseDistance)
	fmt.Printf("Scroll ticks:   %d\n", snap.ScrollTicks)

	if top := snap.TopKeys(topN); len(top) > 0 {
		fmt.Println()
		fmt.Printf("Top %d keys:\n", len(top))
		for _, kc := range top {
			fmt.Printf("  %-12s %d\n", kc.Key, kc.Count)
		}
	}

	today := snap.Today()
	fmt.Println()
	fmt.Printf("Today:          %d keys, %d clicks, %.0f px, %d scrolls\n",
		today.Keys, today.Clicks, today.Distance, today.Scroll)

	fmt.Println()
	fmt.Println("Hourly activity:")
	printHourly(snap.HourlyActivity)
}

// printHourly renders the 24-slot ring as a small bar chart.
func printHourly(hours [24]uint64) {
	var max uint64
	for _, n := range hours {
		if n > max {
			max = n
		}
	}
	if max == 0 {
		fmt.Println("  (no activity)")
		return
	}
	const width = 40
	for h, n := range hours {
		if n == 0 {
			continue
		}
		bar := int(n * width / max)
		if bar == 0 {
			bar = 1
		}
		fmt.Printf("  %02d:00 %-*s %d\n", h, width, strings.Repeat("#", bar), n)
	}
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	days := fs.Int("days", 30, "number of days to show")
	asJSON := fs.Bool("json", false, "print raw JSON")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	hist, err := client.History(*days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		data, _ := json.MarshalIndent(hist, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(hist.Days) == 0 {
		fmt.Println("No history recorded yet.")
		return
	}

	// Oldest first reads better in a terminal.
	sort.Slice(hist.Days, func(i, j int) bool {
		return hist.Days[i].Date < hist.Days[j].Date
	})

	fmt.Println("=== Daily History ===")
	fmt.Println()
	fmt.Printf("%-12s %10s %8s %12s %8s\n", "DATE", "KEYS", "CLICKS", "TRAVEL(px)", "SCROLL")
	for _, day := range hist.Days {
		fmt.Printf("%-12s %10d %8d %12.0f %8d\n",
			day.Date, day.Keys, day.Clicks, day.Distance, day.Scroll)
	}
	fmt.Println()
	fmt.Printf("%-12s %10d %8d %12.0f %8d\n",
		"TOTAL", hist.Totals.Keys, hist.Totals.Clicks, hist.Totals.Distance, hist.Totals.Scroll)
}

func cmdWatch() {
	client := connect()
	defer client.Close()

	fmt.Println("Streaming live statistics (Ctrl-C to stop)...")
	fmt.Println()

	err := client.Subscribe(func(snap stats.Snapshot) bool {
		fmt.Printf("\r%s  keys %d  wpm %.1f  clicks %d  travel %.0fpx  scroll %d   ",
			snap.TakenAt.Format("15:04:05"),
			snap.TotalKeystrokes, snap.WPM,
			totalClicks(snap.MouseClicks), snap.MouseDistance, snap.ScrollTicks)
		return true
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nStream ended: %v\n", err)
		os.Exit(1)
	}
}

func totalClicks(clicks map[string]uint64) uint64 {
	var n uint64
	for _, v := range clicks {
		n += v
	}
	return n
}

func cmdShutdown() {
	client := connect()
	defer client.Close()

	if err := client.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Shutdown requested.")
}
