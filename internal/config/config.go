// Package config loads the broker's service configuration from
// environment variables (spec §6) and its policy document from a JSON
// file (spec §6's policy-file shape), following the env-var-with-
// default pattern in pkg/config/config.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/helm-broker/internal/policy"
	"gopkg.in/yaml.v3"
)

// Service holds the broker's environment-derived runtime configuration.
type Service struct {
	SocketPath    string
	SocketMode    os.FileMode
	AuditLogPath  string
	AuditStatePath string
	AuditRotateBytes int64

	ConfirmDir         string
	ConfirmTTL         time.Duration
	ConfirmReapInterval time.Duration

	MemoryDir string

	NLParserPrimary   string
	NLParserFallback  string
	SkillsDir         string

	ToolDayPlanner    string
	ToolWeatherTool   string
	ToolCalendarRouter string
	ToolEmailRouter   string
}

func getEnv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func getEnvInt64(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvSeconds(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func getEnvMode(name string, def os.FileMode) os.FileMode {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 8, 32)
	if err != nil {
		return def
	}
	return os.FileMode(n)
}

// fileDefaults is the optional YAML service-config file shape
// (HELM_BROKER_CONFIG_FILE), following the profile_loader.go
// convention of a YAML file supplying defaults that individual
// environment variables still override. Unset fields fall through to
// the built-in hardcoded defaults.
type fileDefaults struct {
	SocketPath          *string `yaml:"socket_path"`
	SocketMode          *string `yaml:"socket_mode"`
	AuditLogPath        *string `yaml:"audit_log_path"`
	AuditStatePath      *string `yaml:"audit_state_path"`
	AuditRotateBytes    *int64  `yaml:"audit_rotate_bytes"`
	ConfirmDir          *string `yaml:"confirm_dir"`
	ConfirmTTLSeconds   *int    `yaml:"confirm_ttl_seconds"`
	ConfirmReapSeconds  *int    `yaml:"confirm_reap_interval_seconds"`
	MemoryDir           *string `yaml:"memory_dir"`
	NLParserPrimary     *string `yaml:"nl_parser_primary"`
	NLParserFallback    *string `yaml:"nl_parser_fallback"`
	SkillsDir           *string `yaml:"skills_dir"`
}

// loadFileDefaults reads the optional YAML service-config file. A
// missing path is not an error (the file is optional); a present but
// unparsable file is, so misconfiguration is not silently ignored.
func loadFileDefaults(path string) (fileDefaults, error) {
	if path == "" {
		return fileDefaults{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileDefaults{}, fmt.Errorf("reading service config file: %w", err)
	}
	var fd fileDefaults
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return fileDefaults{}, fmt.Errorf("parsing service config file: %w", err)
	}
	return fd, nil
}

func strDefault(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func int64Default(p *int64, def int64) int64 {
	if p != nil {
		return *p
	}
	return def
}

func secondsDefault(p *int, def time.Duration) time.Duration {
	if p != nil {
		return time.Duration(*p) * time.Second
	}
	return def
}

func modeDefault(p *string, def os.FileMode) os.FileMode {
	if p != nil {
		if n, err := strconv.ParseUint(*p, 8, 32); err == nil {
			return os.FileMode(n)
		}
	}
	return def
}

// LoadService reads the broker's service configuration, layering
// environment variables (spec §6) over an optional YAML service-config
// file (HELM_BROKER_CONFIG_FILE) over the documented hardcoded
// defaults. A malformed config file is reported; env vars still apply
// the documented defaults when the file is absent or unset.
func LoadService() (Service, error) {
	fd, err := loadFileDefaults(os.Getenv("HELM_BROKER_CONFIG_FILE"))
	if err != nil {
		return Service{}, err
	}

	return Service{
		SocketPath:       getEnv("HELM_BROKER_SOCKET_PATH", strDefault(fd.SocketPath, "/run/helm-broker/broker.sock")),
		SocketMode:       getEnvMode("HELM_BROKER_SOCKET_MODE", modeDefault(fd.SocketMode, 0o660)),
		AuditLogPath:     getEnv("HELM_BROKER_AUDIT_LOG", strDefault(fd.AuditLogPath, "/var/log/helm-broker/audit.jsonl")),
		AuditStatePath:   getEnv("HELM_BROKER_AUDIT_STATE", strDefault(fd.AuditStatePath, "/var/lib/helm-broker/audit-state.json")),
		AuditRotateBytes: getEnvInt64("HELM_BROKER_AUDIT_ROTATE_BYTES", int64Default(fd.AuditRotateBytes, 5*1024*1024)),

		ConfirmDir:          getEnv("HELM_BROKER_CONFIRM_DIR", strDefault(fd.ConfirmDir, "/var/lib/helm-broker/confirmations")),
		ConfirmTTL:          getEnvSeconds("HELM_BROKER_CONFIRM_TTL_SECONDS", secondsDefault(fd.ConfirmTTLSeconds, 300*time.Second)),
		ConfirmReapInterval: getEnvSeconds("HELM_BROKER_CONFIRM_REAP_INTERVAL_SECONDS", secondsDefault(fd.ConfirmReapSeconds, 300*time.Second)),

		MemoryDir: getEnv("HELM_BROKER_MEMORY_DIR", strDefault(fd.MemoryDir, "/var/lib/helm-broker/memory")),

		NLParserPrimary:  getEnv("HELM_BROKER_NL_PARSER", strDefault(fd.NLParserPrimary, "/usr/libexec/helm-broker/nl_parser")),
		NLParserFallback: getEnv("HELM_BROKER_NL_PARSER_FALLBACK", strDefault(fd.NLParserFallback, "/usr/libexec/helm-broker/nl_parser_fallback")),
		SkillsDir:        getEnv("HELM_BROKER_SKILLS_DIR", strDefault(fd.SkillsDir, "/usr/share/helm-broker/skills")),

		ToolDayPlanner:     getEnv("HELM_BROKER_DAY_PLANNER", "/usr/libexec/helm-broker/day_planner.py"),
		ToolWeatherTool:    getEnv("HELM_BROKER_WEATHER_TOOL", "/usr/libexec/helm-broker/weather_tool.py"),
		ToolCalendarRouter: getEnv("HELM_BROKER_CALENDAR_ROUTER", "/usr/libexec/helm-broker/calendar_router.py"),
		ToolEmailRouter:    getEnv("HELM_BROKER_EMAIL_ROUTER", "/usr/libexec/helm-broker/email_router.py"),
	}, nil
}

// policyFile mirrors the on-disk JSON shape from spec §6.
type policyFile struct {
	Version int    `json:"version"`
	Mode    string `json:"mode"`
	Constraints struct {
		RequireConfirmationFor      []string       `json:"require_confirmation_for"`
		DenyActions                 []string       `json:"deny_actions"`
		PackageInstallDeny          []string       `json:"package_install_deny"`
		PackageInstallConfirm       []string       `json:"package_install_confirm"`
		OpenURLAllowedDomains       []string       `json:"open_url_allowed_domains"`
		OpenAppAllowed              []string       `json:"open_app_allowed"`
		ListFilesAllowedPrefixes    []string       `json:"list_files_allowed_prefixes"`
		RateLimitPerMinuteDefault   int            `json:"rate_limit_per_minute_default"`
		RateLimitPerMinuteOverrides map[string]int `json:"rate_limit_per_minute_overrides"`
	} `json:"constraints"`
}

// LoadPolicy reads and parses the JSON policy document at path into a
// policy.Config. CustomRules is a Go-native extension (SPEC_FULL.md
// domain stack) and has no JSON-file representation here; callers
// wishing to use it construct policy.Config directly.
func LoadPolicy(path string) (policy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Config{}, fmt.Errorf("reading policy file: %w", err)
	}

	var pf policyFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return policy.Config{}, fmt.Errorf("parsing policy file: %w", err)
	}

	return policy.Config{
		Mode:                        pf.Mode,
		DenyActions:                 pf.Constraints.DenyActions,
		RequireConfirmActions:       pf.Constraints.RequireConfirmationFor,
		PackageInstallDeny:          pf.Constraints.PackageInstallDeny,
		PackageInstallConfirm:       pf.Constraints.PackageInstallConfirm,
		OpenURLAllowedDomains:       pf.Constraints.OpenURLAllowedDomains,
		OpenAppAllowed:              pf.Constraints.OpenAppAllowed,
		ListFilesAllowedPrefixes:    pf.Constraints.ListFilesAllowedPrefixes,
		RateLimitPerMinuteDefault:   pf.Constraints.RateLimitPerMinuteDefault,
		RateLimitPerMinuteOverrides: pf.Constraints.RateLimitPerMinuteOverrides,
	}, nil
}
