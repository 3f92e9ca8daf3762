package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ============================================================================
// knobctl - Command-line IPC Client
// ============================================================================
// This tool sends events to the otpknob daemon via IPC.
//
// Usage:
//   knobctl wifi-status connected MyNetwork
//   knobctl wifi-status disconnected
//   knobctl ping
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/otpknob.sock)
// ============================================================================

// Event types (duplicated from main package for standalone binary)

type WifiStatus struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
}

type Ping struct{}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/otpknob.sock"

	// Parse arguments
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	var env EventEnvelope

	switch args[0] {
	case "wifi-status", "wifi":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: wifi-status requires a state argument\n")
			os.Exit(1)
		}
		status := WifiStatus{}
		switch args[1] {
		case "connected", "up", "true", "1":
			status.Connected = true
		case "disconnected", "down", "false", "0":
			status.Connected = false
		default:
			// Accept a bare boolean too
			b, err := strconv.ParseBool(args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid wifi state: %s\n", args[1])
				os.Exit(1)
			}
			status.Connected = b
		}
		if len(args) > 2 {
			status.SSID = args[2]
		}
		data, err := json.Marshal(status)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: marshal wifi status: %v\n", err)
			os.Exit(1)
		}
		env = EventEnvelope{Type: "wifi_status", Data: data}

	case "ping":
		env = EventEnvelope{Type: "ping"}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	// Send event
	if err := sendEvent(socketPath, env); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func sendEvent(socketPath string, env EventEnvelope) error {
	// Connect to socket
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	// Marshal envelope
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	// Read response
	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	// Check response status
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}

	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `knobctl - Control otpknob daemon via IPC

Usage:
  knobctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/otpknob.sock)

Commands:
  wifi-status <state> [ssid]   Push Wi-Fi connectivity for the info screen
                               (state: connected|disconnected)
  ping                         Probe daemon liveness
  help, -h, --help             Show this help message

Examples:
  knobctl ping
  knobctl wifi-status connected HomeNet
  knobctl -socket /var/run/otpknob.sock wifi-status disconnected
`)
}
