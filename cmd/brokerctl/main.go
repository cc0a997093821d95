// Command brokerctl is a one-shot CLI client for the broker's local
// socket (spec §6), grounded on the Rust original's bin/agent_client.rs
// and flag-dispatch style from cmd/helm/main.go.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: brokerctl '{\"name\":\"package_install\",\"payload\":\"vim\"}'")
	fmt.Fprintln(w, "       brokerctl --ping")
	fmt.Fprintln(w, "       brokerctl --confirm <id>")
	fmt.Fprintln(w, "       brokerctl --natural \"install firefox\"")
}

// Run is the testable entrypoint, returning the process exit code
// exactly as spec §6 defines it: 1 usage, 2 bad JSON input, 3 connect
// failure, 4 write failure, 5 read failure, 6 empty response, 7 bad
// response.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 1
	}

	req, code := buildRequest(args[1:])
	switch code {
	case 1:
		usage(stderr)
		return 1
	case 2:
		fmt.Fprintln(stderr, "invalid json input")
		return 2
	}
	if req.Version == 0 {
		req.Version = wire.ProtocolVersion
	}

	socket := os.Getenv("HELM_BROKER_SOCKET_PATH")
	if socket == "" {
		socket = "/run/helm-broker/broker.sock"
	}

	conn, err := net.DialTimeout("unix", socket, 5*time.Second)
	if err != nil {
		fmt.Fprintf(stderr, "connect failed: %v\n", err)
		return 3
	}
	defer conn.Close()

	line, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintln(stderr, "invalid json input")
		return 2
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		fmt.Fprintf(stderr, "write failed: %v\n", err)
		return 4
	}

	reader := bufio.NewReader(conn)
	respLine, err := reader.ReadString('\n')
	if err != nil && respLine == "" {
		fmt.Fprintf(stderr, "read failed: %v\n", err)
		return 5
	}

	respLine = strings.TrimSpace(respLine)
	if respLine == "" {
		fmt.Fprintln(stderr, "no response")
		return 6
	}

	var resp wire.Response
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		fmt.Fprintf(stderr, "invalid response: %v\n", err)
		return 7
	}

	fmt.Fprintf(stdout, "v%d %s: %s\n", resp.Version, resp.Action, resp.Status)
	if resp.Message != "" {
		fmt.Fprintf(stdout, "message: %s\n", resp.Message)
	}
	if resp.Capabilities != nil {
		fmt.Fprintf(stdout, "capabilities: ipc_version=%s, protocol_version=%d, actions=%v\n",
			resp.Capabilities.IPCVersion, resp.Capabilities.ProtocolVersion, resp.Capabilities.Actions)
	}
	if resp.ConfirmationID != "" {
		fmt.Fprintf(stdout, "confirmation_id: %s\n", resp.ConfirmationID)
	}
	return 0
}

// buildRequest parses the CLI's shorthand flags (--ping, --confirm,
// --natural) or falls back to treating args[0] as a raw JSON request.
func buildRequest(args []string) (wire.Request, int) {
	switch args[0] {
	case "--ping":
		return wire.Request{Version: wire.ProtocolVersion, Name: "ping"}, 0
	case "--confirm":
		if len(args) < 2 {
			return wire.Request{}, 1
		}
		return wire.Request{Version: wire.ProtocolVersion, Name: "confirm", Payload: args[1]}, 0
	case "--natural":
		if len(args) < 2 {
			return wire.Request{}, 1
		}
		return wire.Request{Version: wire.ProtocolVersion, Name: "natural_language", Payload: strings.Join(args[1:], " ")}, 0
	default:
		var req wire.Request
		if err := json.Unmarshal([]byte(args[0]), &req); err != nil {
			return wire.Request{}, 2
		}
		return req, 0
	}
}
