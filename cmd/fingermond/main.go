// fingermond - Input usage statistics daemon
//
//	fingermond run        Run the daemon in the foreground
//	fingermond status     Query a running daemon's status
//	fingermond stats      Query a running daemon's statistics
//	fingermond check      Verify input capture works with current permissions
//	fingermond version    Print version
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"fingermon/internal/config"
	"fingermon/internal/event"
	"fingermon/internal/ipc"
	"fingermon/internal/listener"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "stats":
		cmdStats()
	case "check":
		cmdCheck()
	case "version", "-v", "--version":
		fmt.Printf("fingermond %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`fingermond - Input usage statistics daemon

USAGE:
    fingermond <command> [options]

COMMANDS:
    run         Run the daemon in the foreground
    status      Query a running daemon's status
    stats       Query a running daemon's statistics
    check       Verify input capture works with current permissions
    version     Print version
    help        Show this help message

OPTIONS (run):
    -config <path>    Configuration file (default: platform config dir)
    -no-input         Serve existing statistics without capturing input

The daemon counts keystrokes, mouse clicks, pointer travel and scroll
activity. It records which keys are pressed for frequency statistics,
but never the order or the text typed. Query it with fingermonctl.

SETUP (Linux):
    Reading /dev/input requires membership in the 'input' group:
        sudo usermod -aG input $USER
    then log out and back in.`)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file path")
	noInput := fs.Bool("no-input", false, "serve existing statistics without capturing input")
	fs.Parse(os.Args[2:])

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}

	d, err := newDaemon(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	d.noInput = *noInput

	if err := d.run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dialDaemon connects to the control socket of a running daemon.
func dialDaemon() *ipc.Client {
	cfg, err := config.NewLoader(config.ConfigPath()).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	client, err := ipc.Connect(cfg.IPC.SocketPath, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon not reachable at %s: %v\n", cfg.IPC.SocketPath, err)
		os.Exit(1)
	}
	return client
}

func cmdStatus() {
	client := dialDaemon()
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("fingermond %s, up %s\n", st.Version, st.Uptime)
	if st.ListenerActive {
		fmt.Println("Input capture: active")
	} else {
		fmt.Println("Input capture: inactive")
	}
	if st.Healthy {
		fmt.Println("Health: ok")
	} else {
		fmt.Printf("Health: degraded (%s)\n", st.HealthDetail)
	}
}

func cmdStats() {
	client := dialDaemon()
	defer client.Close()

	snap, err := client.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var clicks uint64
	for _, n := range snap.MouseClicks {
		clicks += n
	}
	fmt.Printf("Keystrokes: %d  WPM: %.1f  Clicks: %d  Travel: %.0fpx  Scroll: %d\n",
		snap.TotalKeystrokes, snap.WPM, clicks, snap.MouseDistance, snap.ScrollTicks)
}

func cmdCheck() {
	cfg, err := config.NewLoader(config.ConfigPath()).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	sink := make(chan event.Event, 1)
	l := listener.New(sink, listener.Options{
		DevicePattern: cfg.Listener.DevicePattern,
		IgnoreDevices: cfg.Listener.IgnoreDevices,
	})

	ok, reason := l.Available()
	if ok {
		fmt.Printf("Input capture available: %s\n", reason)
		return
	}
	fmt.Fprintf(os.Stderr, "Input capture NOT available: %s\n", reason)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "On Linux, add yourself to the 'input' group or run as root.")
	os.Exit(1)
}
