// Package vtcache maintains the in-memory table of vulnerability test (VT)
// metadata loaded from the shared blackboard's cache index.
//
// The table is rebuilt wholesale on feed-version changes and is strictly
// read-only while any scan is running; the reconciliation rules that protect
// in-flight scans from a reload live in Cache.CheckFeed.
package vtcache

import (
	"strings"
)

// Param describes one declared VT parameter.
type Param struct {
	ID      string
	Type    string
	Name    string
	Default string
}

// Severity describes a VT's severity descriptor.
type Severity struct {
	Vector string
	Type   string
	Origin string
}

// VT is one vulnerability test definition keyed by its OID.
type VT struct {
	OID      string
	Name     string
	Created  string
	Modified string

	Params map[string]Param
	Refs   map[string][]string

	// Custom holds the feed fields that were not extracted into a typed
	// field; kept for display layers.
	Custom map[string]string

	Summary      string
	Impact       string
	Affected     string
	Insight      string
	Solution     string
	SolutionType string
	Detection    string
	QoDType      string
	QoDValue     string

	Severity     Severity
	Dependencies []string
}

// Family returns the VT's family custom field, or "" when absent.
func (v *VT) Family() string {
	return v.Custom["family"]
}

// QoD returns the VT's quality-of-detection value: the mapped QoD type when
// one is declared, otherwise the raw numeric value, otherwise "".
func (v *VT) QoD() string {
	if v.QoDType != "" {
		if mapped, ok := QoDTypes[v.QoDType]; ok {
			return mapped
		}
		return ""
	}
	return v.QoDValue
}

// ParamType returns the declared type of the given parameter id, or false
// when the parameter is not declared.
func (v *VT) ParamType(id string) (string, bool) {
	p, ok := v.Params[id]
	if !ok {
		return "", false
	}
	return p.Type, true
}

// QoDTypes maps quality-of-detection type names to their numeric values, as
// defined by the engine's feed.
var QoDTypes = map[string]string{
	"exploit":                       "100",
	"remote_vul":                    "99",
	"remote_app":                    "98",
	"package":                       "97",
	"registry":                      "97",
	"remote_active":                 "95",
	"remote_banner":                 "80",
	"executable_version":            "80",
	"remote_analysis":               "70",
	"remote_probe":                  "50",
	"remote_banner_unreliable":      "30",
	"executable_version_unreliable": "30",
	"general_note":                  "1",
	"default":                       "70",
}

// ValidOID reports whether s is a well-formed dotted-decimal OID.
func ValidOID(s string) bool {
	if s == "" {
		return false
	}
	for _, segment := range strings.Split(s, ".") {
		if segment == "" {
			return false
		}
		for _, r := range segment {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
