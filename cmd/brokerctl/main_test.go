package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/Mindburn-Labs/helm-broker/internal/wire"
	"github.com/stretchr/testify/require"
)

func startFakeBroker(t *testing.T, respond func(wire.Request) wire.Response) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				for scanner.Scan() {
					var req wire.Request
					json.Unmarshal(scanner.Bytes(), &req)
					resp := respond(req)
					out, _ := json.Marshal(resp)
					conn.Write(append(out, '\n'))
				}
			}()
		}
	}()
	return path
}

func TestRunNoArgsReturnsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"brokerctl"}, &out, &errOut)
	require.Equal(t, 1, code)
}

func TestRunBadJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"brokerctl", "{not json"}, &out, &errOut)
	require.Equal(t, 2, code)
}

func TestRunConnectFailure(t *testing.T) {
	t.Setenv("HELM_BROKER_SOCKET_PATH", "/nonexistent/broker.sock")
	var out, errOut bytes.Buffer
	code := Run([]string{"brokerctl", "--ping"}, &out, &errOut)
	require.Equal(t, 3, code)
}

func TestRunPingSuccess(t *testing.T) {
	path := startFakeBroker(t, func(req wire.Request) wire.Response {
		return wire.OK(req.Name, "pong")
	})
	t.Setenv("HELM_BROKER_SOCKET_PATH", path)

	var out, errOut bytes.Buffer
	code := Run([]string{"brokerctl", "--ping"}, &out, &errOut)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "ok")
	require.Contains(t, out.String(), "pong")
}

func TestRunConfirmMissingID(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"brokerctl", "--confirm"}, &out, &errOut)
	require.Equal(t, 1, code)
}

func TestRunRawJSONRequest(t *testing.T) {
	path := startFakeBroker(t, func(req wire.Request) wire.Response {
		return wire.OK(req.Name, "installed: "+req.Payload)
	})
	t.Setenv("HELM_BROKER_SOCKET_PATH", path)

	var out, errOut bytes.Buffer
	code := Run([]string{"brokerctl", `{"name":"package_install","payload":"vim"}`}, &out, &errOut)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "installed: vim")
}

func TestRunBadResponseFromServer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte("not json\n"))
	}()

	t.Setenv("HELM_BROKER_SOCKET_PATH", path)
	var out, errOut bytes.Buffer
	code := Run([]string{"brokerctl", "--ping"}, &out, &errOut)
	require.Equal(t, 7, code)
}
