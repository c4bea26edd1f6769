// Package prefs builds the preference records a scan hands to the engine
// through the blackboard: scanner options, target and port selection, the
// plugin set with per-plugin parameters, and service credentials.
package prefs

// ScannerParam describes one engine-level scanner option.
type ScannerParam struct {
	Type        string
	Default     string
	Mandatory   bool
	Description string
}

// ScannerParams is the set of scanner options the bridge advertises and
// accepts per scan. Boolean defaults use "1"/"0"; they are rendered as
// yes/no when encoded for the engine.
var ScannerParams = map[string]ScannerParam{
	"auto_enable_dependencies": {
		Type:        "boolean",
		Default:     "1",
		Mandatory:   true,
		Description: "Automatically enable the plugins that are depended on",
	},
	"cgi_path": {
		Type:        "string",
		Default:     "/cgi-bin:/scripts",
		Mandatory:   true,
		Description: "Look for default CGIs in /cgi-bin and /scripts",
	},
	"checks_read_timeout": {
		Type:        "integer",
		Default:     "5",
		Mandatory:   true,
		Description: "Number of seconds that the security checks will wait for when doing a recv()",
	},
	"drop_privileges": {
		Type:      "boolean",
		Default:   "0",
		Mandatory: true,
	},
	"network_scan": {
		Type:      "boolean",
		Default:   "0",
		Mandatory: true,
	},
	"non_simult_ports": {
		Type:        "string",
		Default:     "139, 445, 3389, Services/irc",
		Mandatory:   true,
		Description: "Prevent to make two connections on the same given ports at the same time.",
	},
	"open_sock_max_attempts": {
		Type:        "integer",
		Default:     "5",
		Description: "Number of unsuccessful retries to open the socket before to set the port as closed.",
	},
	"timeout_retry": {
		Type:        "integer",
		Default:     "5",
		Description: "Number of retries when a socket connection attempt timesout.",
	},
	"optimize_test": {
		Type:        "integer",
		Default:     "5",
		Description: "By default, openvassd does not trust the remote host banners.",
	},
	"plugins_timeout": {
		Type:        "integer",
		Default:     "5",
		Description: "This is the maximum lifetime, in seconds of a plugin.",
	},
	"report_host_details": {
		Type:      "boolean",
		Default:   "1",
		Mandatory: true,
	},
	"safe_checks": {
		Type:        "boolean",
		Default:     "1",
		Mandatory:   true,
		Description: "Disable the plugins with potential to crash the remote services",
	},
	"scanner_plugins_timeout": {
		Type:        "integer",
		Default:     "36000",
		Mandatory:   true,
		Description: "Like plugins_timeout, but for ACT_SCANNER plugins.",
	},
	"time_between_request": {
		Type:        "integer",
		Default:     "0",
		Description: "Allow to set a wait time between two actions (open, send, close).",
	},
	"unscanned_closed": {
		Type:      "boolean",
		Default:   "1",
		Mandatory: true,
	},
	"unscanned_closed_udp": {
		Type:      "boolean",
		Default:   "1",
		Mandatory: true,
	},
	"use_mac_addr": {
		Type:        "boolean",
		Default:     "0",
		Description: "To test the local network. Hosts will be referred to by their MAC address.",
	},
	"vhosts": {
		Type: "string",
	},
	"vhosts_ip": {
		Type: "string",
	},
}

// BoolToYesNo renders a boolean option value the way the engine expects.
func BoolToYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
