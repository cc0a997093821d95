// Package wire defines the JSON types exchanged over the broker's local
// socket (spec §3, §6).
package wire

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ProtocolVersion is the only protocol version the broker currently speaks.
const ProtocolVersion = 1

// protocolConstraint pins the accepted wire version. Requests carry a
// bare integer (spec §6), which is mapped to a broker-internal semver
// ("1" -> "1.0.0") and checked against this constraint rather than
// compared as a raw int, so a future minor/patch broker release can
// widen the constraint without touching call sites.
var protocolConstraint = semver.MustParseConstraint("= 1.0.0")

// SupportedVersion reports whether v (a bare request.version integer,
// 0 meaning "unset") is acceptable on the wire.
func SupportedVersion(v int) bool {
	if v == 0 {
		return true
	}
	candidate, err := semver.NewVersion(fmt.Sprintf("%d.0.0", v))
	if err != nil {
		return false
	}
	return protocolConstraint.Check(candidate)
}

// Status values a Response may carry.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusDeny    = "deny"
	StatusConfirm = "confirm"
)

// Request is one line of caller-submitted JSON.
type Request struct {
	Version int    `json:"version,omitempty"`
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"`
}

// Response is one line of broker-emitted JSON.
type Response struct {
	Version        int          `json:"version"`
	Action         string       `json:"action"`
	Status         string       `json:"status"`
	Message        string       `json:"message,omitempty"`
	Capabilities   *Capability  `json:"capabilities,omitempty"`
	ConfirmationID string       `json:"confirmation_id,omitempty"`
}

// Capability describes what the broker can do, returned only from
// get_capabilities.
type Capability struct {
	IPCVersion      string   `json:"ipc_version"`
	Actions         []string `json:"actions"`
	ProtocolVersion int      `json:"protocol_version"`
}

// OK builds a successful response.
func OK(action, message string) Response {
	return Response{Version: ProtocolVersion, Action: action, Status: StatusOK, Message: message}
}

// Errorf builds an error response.
func Errorf(action, message string) Response {
	return Response{Version: ProtocolVersion, Action: action, Status: StatusError, Message: message}
}

// Deny builds a policy/allowlist/rate-limit denial response.
func Deny(action, message string) Response {
	return Response{Version: ProtocolVersion, Action: action, Status: StatusDeny, Message: message}
}

// Confirm builds a pending-confirmation response.
func Confirm(action, confirmationID string) Response {
	return Response{
		Version:        ProtocolVersion,
		Action:         action,
		Status:         StatusConfirm,
		Message:        "user confirmation required",
		ConfirmationID: confirmationID,
	}
}
