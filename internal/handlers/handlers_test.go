package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls [][]string
	fail  map[string]bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.fail[name] {
		return "", fmt.Errorf("%s: simulated failure", name)
	}
	return "ok", nil
}

func newDeps(r *fakeRunner, memDir string) Deps {
	return Deps{Runner: r, MemoryDir: memDir}
}

func TestMediaHandlers(t *testing.T) {
	fr := &fakeRunner{}
	reg := registry.New()
	RegisterMedia(reg, newDeps(fr, ""))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "set_volume", Payload: "50"})
	require.Equal(t, wire.StatusOK, resp.Status)

	resp = reg.Dispatch(context.Background(), wire.Request{Name: "set_volume", Payload: "150"})
	require.Equal(t, wire.StatusError, resp.Status)

	resp = reg.Dispatch(context.Background(), wire.Request{Name: "set_brightness", Payload: "10"})
	require.Equal(t, wire.StatusOK, resp.Status)
}

func TestMemoryHandlers(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	RegisterMemory(reg, newDeps(&fakeRunner{}, dir))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "remember", Payload: "buy milk"})
	require.Equal(t, wire.StatusOK, resp.Status)

	resp = reg.Dispatch(context.Background(), wire.Request{Name: "read_context"})
	require.Equal(t, wire.StatusOK, resp.Status)
	require.Contains(t, resp.Message, "buy milk")

	require.FileExists(t, filepath.Join(dir, "notes.jsonl"))
}

func TestMemoryReadContextEmpty(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	RegisterMemory(reg, newDeps(&fakeRunner{}, dir))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "read_context"})
	require.Equal(t, wire.StatusOK, resp.Status)
	require.Equal(t, "No saved context yet.", resp.Message)
}

func TestNetworkHandlers(t *testing.T) {
	fr := &fakeRunner{}
	reg := registry.New()
	RegisterNetwork(reg, newDeps(fr, ""))

	for _, name := range []string{"wifi_on", "wifi_off", "bluetooth_on", "bluetooth_off"} {
		resp := reg.Dispatch(context.Background(), wire.Request{Name: name})
		require.Equal(t, wire.StatusOK, resp.Status, name)
	}
	require.Len(t, fr.calls, 4)
}

func TestPackageInstallValidation(t *testing.T) {
	fr := &fakeRunner{}
	reg := registry.New()
	RegisterPackage(reg, newDeps(fr, ""))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "package_install", Payload: ""})
	require.Equal(t, wire.StatusError, resp.Status)

	resp = reg.Dispatch(context.Background(), wire.Request{Name: "package_install", Payload: "git; rm -rf /"})
	require.Equal(t, wire.StatusError, resp.Status)

	resp = reg.Dispatch(context.Background(), wire.Request{Name: "package_install", Payload: "git, curl"})
	require.Equal(t, wire.StatusOK, resp.Status)
}

func TestPackageInstallTooMany(t *testing.T) {
	fr := &fakeRunner{}
	reg := registry.New()
	RegisterPackage(reg, newDeps(fr, ""))

	payload := ""
	for i := 0; i < 21; i++ {
		if i > 0 {
			payload += ","
		}
		payload += fmt.Sprintf("pkg%d", i)
	}
	resp := reg.Dispatch(context.Background(), wire.Request{Name: "package_install", Payload: payload})
	require.Equal(t, wire.StatusError, resp.Status)
}

func TestPackageInstallFallsBackToFlatpak(t *testing.T) {
	fr := &fakeRunner{fail: map[string]bool{"apt-get": true}}
	reg := registry.New()
	RegisterPackage(reg, newDeps(fr, ""))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "package_install", Payload: "gimp"})
	require.Equal(t, wire.StatusOK, resp.Status)

	var sawFlatpak bool
	for _, c := range fr.calls {
		if c[0] == "flatpak" {
			sawFlatpak = true
		}
	}
	require.True(t, sawFlatpak)
}

func TestPowerHandlers(t *testing.T) {
	fr := &fakeRunner{}
	reg := registry.New()
	RegisterPower(reg, newDeps(fr, ""))

	for _, name := range []string{"power_reboot", "power_shutdown", "power_sleep"} {
		resp := reg.Dispatch(context.Background(), wire.Request{Name: name})
		require.Equal(t, wire.StatusOK, resp.Status, name)
	}
}

func TestSystemUpdateRunsWhenNotImmutable(t *testing.T) {
	if _, err := os.Stat(immutableMarker); err == nil {
		t.Skip("host carries an immutable marker at the well-known path")
	}
	fr := &fakeRunner{}
	reg := registry.New()
	RegisterSystem(reg, newDeps(fr, ""))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "system_update"})
	require.Equal(t, wire.StatusOK, resp.Status)
}

func TestToolsHandlersRoutePayload(t *testing.T) {
	fr := &fakeRunner{}
	reg := registry.New()
	RegisterTools(reg, newDeps(fr, ""))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "weather_get", Payload: "tomorrow"})
	require.Equal(t, wire.StatusOK, resp.Status)
	require.NotEmpty(t, fr.calls)
	last := fr.calls[len(fr.calls)-1]
	require.Equal(t, "python3", last[0])
	require.Equal(t, "tomorrow", last[len(last)-1])
}

func TestToolPathFallsBackThroughSkillsDir(t *testing.T) {
	require.NoError(t, os.Unsetenv("HELM_BROKER_WEATHER_TOOL"))

	require.Equal(t, filepath.Join("/usr/libexec/helm-broker", "weather_tool.py"), toolPath("HELM_BROKER_WEATHER_TOOL", "", "weather_tool.py"))
	require.Equal(t, filepath.Join("/opt/skills", "weather_tool.py"), toolPath("HELM_BROKER_WEATHER_TOOL", "/opt/skills", "weather_tool.py"))

	require.NoError(t, os.Setenv("HELM_BROKER_WEATHER_TOOL", "/custom/weather.py"))
	defer os.Unsetenv("HELM_BROKER_WEATHER_TOOL")
	require.Equal(t, "/custom/weather.py", toolPath("HELM_BROKER_WEATHER_TOOL", "/opt/skills", "weather_tool.py"))
}

func TestUIOpenURLRejectsUnsafe(t *testing.T) {
	fr := &fakeRunner{}
	reg := registry.New()
	RegisterUI(reg, newDeps(fr, ""))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "open_url", Payload: "file:///etc/passwd"})
	require.Equal(t, wire.StatusError, resp.Status)

	resp = reg.Dispatch(context.Background(), wire.Request{Name: "open_url", Payload: "https://example.com"})
	require.Equal(t, wire.StatusOK, resp.Status)
}

func TestUIListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o640))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	reg := registry.New()
	RegisterUI(reg, newDeps(&fakeRunner{}, ""))

	resp := reg.Dispatch(context.Background(), wire.Request{Name: "list_files", Payload: dir})
	require.Equal(t, wire.StatusOK, resp.Status)
	require.Contains(t, resp.Message, "a.txt")
	require.Contains(t, resp.Message, "sub/")
}
