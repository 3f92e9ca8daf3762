package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// External collaborators feed the UI through a Unix domain socket: the Wi-Fi
// watcher pushes connectivity status for the info screen, and tooling can
// ping the daemon. Networked listeners are deliberately absent.
//
// Protocol: line-delimited JSON
//   - Client sends: {"type": "event_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// ExternalEvent is an event injected from outside the frame loop.
type ExternalEvent interface {
	externalEvent()
}

// WifiStatusEvent updates the info screen's connectivity line.
type WifiStatusEvent struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
}

func (WifiStatusEvent) externalEvent() {}

// PingEvent is a liveness probe; it reaches the frame loop and is dropped.
type PingEvent struct{}

func (PingEvent) externalEvent() {}

// eventEnvelope is the wire form with a type discriminator.
type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalExternalEvent parses one wire line into an event.
func UnmarshalExternalEvent(b []byte) (ExternalEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case "wifi_status":
		var ev WifiStatusEvent
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				return nil, fmt.Errorf("decode wifi_status: %w", err)
			}
		}
		return ev, nil
	case "ping":
		return PingEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// MarshalExternalEvent renders an event into its wire form.
func MarshalExternalEvent(ev ExternalEvent) ([]byte, error) {
	var env eventEnvelope
	switch e := ev.(type) {
	case WifiStatusEvent:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		env = eventEnvelope{Type: "wifi_status", Data: data}
	case PingEvent:
		env = eventEnvelope{Type: "ping"}
	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}
	return json.Marshal(env)
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
}

// runIPCServer starts the Unix domain socket server. It runs until ctx is
// canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, events chan<- ExternalEvent, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, events, logger)
	}
}

// handleIPCConnection processes a single IPC client connection
func handleIPCConnection(conn net.Conn, events chan<- ExternalEvent, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("IPC received", "line", line)

		ev, err := UnmarshalExternalEvent([]byte(line))
		if err != nil {
			resp := IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)}
			if encErr := encoder.Encode(resp); encErr != nil {
				logger.Error("IPC failed to send error response", "error", encErr)
			}
			continue
		}

		select {
		case events <- ev:
			if encErr := encoder.Encode(IPCResponse{Status: "ok"}); encErr != nil {
				logger.Error("IPC failed to send success response", "error", encErr)
			}
		default:
			resp := IPCResponse{Status: "error", Error: "event queue full"}
			if encErr := encoder.Encode(resp); encErr != nil {
				logger.Error("IPC failed to send error response", "error", encErr)
			}
		}
	}

	logger.Debug("IPC connection closed")
}

// SendIPCEvent sends an event to the daemon via IPC and checks the response.
// Used by external tools (see cmd/knobctl).
func SendIPCEvent(socketPath string, ev ExternalEvent) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalExternalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}
