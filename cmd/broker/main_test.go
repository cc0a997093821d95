package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/Mindburn-Labs/helm-broker/internal/wire"
	"github.com/stretchr/testify/require"
)

// TestRunServesPingOverSocket starts the full service entrypoint against
// a scratch directory, dials it, exercises ping, then signals shutdown.
func TestRunServesPingOverSocket(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HELM_BROKER_SOCKET_PATH", filepath.Join(dir, "broker.sock"))
	t.Setenv("HELM_BROKER_AUDIT_LOG", filepath.Join(dir, "audit.jsonl"))
	t.Setenv("HELM_BROKER_AUDIT_STATE", filepath.Join(dir, "audit-state.json"))
	t.Setenv("HELM_BROKER_CONFIRM_DIR", filepath.Join(dir, "confirm"))
	t.Setenv("HELM_BROKER_MEMORY_DIR", filepath.Join(dir, "memory"))
	t.Setenv("HELM_BROKER_POLICY_FILE", "")

	var out, errOut bytes.Buffer
	exitCh := make(chan int, 1)
	go func() { exitCh <- Run([]string{"broker"}, &out, &errOut) }()

	socketPath := filepath.Join(dir, "broker.sock")
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	reqLine, _ := json.Marshal(wire.Request{Version: 1, Name: "ping"})
	_, err = conn.Write(append(reqLine, '\n'))
	require.NoError(t, err)

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var resp wire.Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	require.Equal(t, wire.StatusOK, resp.Status)
	require.Equal(t, "pong", resp.Message)

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(syscall.SIGTERM))

	select {
	case code := <-exitCh:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not shut down after SIGTERM")
	}
}
