package prefs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/janowagner/ospd-openvas/pkg/kb"
	"github.com/janowagner/ospd-openvas/pkg/vtcache"
)

// ErrEmptyPluginSet is returned when a request selects no runnable VTs.
var ErrEmptyPluginSet = errors.New("no VTs to run")

// VTSelection names the VTs a scan should run: single OIDs with optional
// parameter overrides, plus group filters of the form "family=<name>".
type VTSelection struct {
	Single map[string]map[string]string
	Groups []string
}

// Request carries everything needed to encode the preference records of
// one scan.
type Request struct {
	ScanID      string
	Target      string
	Ports       string
	Options     map[string]any
	Credentials map[string]Credential
	VTs         VTSelection
}

// Encoder renders scan requests as the ordered preference records the
// engine reads from its scan preference list.
type Encoder struct {
	cache  *vtcache.Cache
	logger zerolog.Logger
}

// NewEncoder creates an Encoder resolving VT names and parameter types
// from the given cache.
func NewEncoder(cache *vtcache.Cache) *Encoder {
	return &Encoder{
		cache:  cache,
		logger: log.With().Str("component", "prefs").Logger(),
	}
}

// Encode renders the request as preference records, in the order the
// engine expects: scanner options, the main blackboard index, target and
// port range, credentials, the plugin set, then per-plugin parameters.
// mainIndex is the blackboard index the scan's results are written to.
func (e *Encoder) Encode(req *Request, mainIndex int) ([]string, error) {
	var records []string

	options := make([]string, 0, len(req.Options))
	for name := range req.Options {
		options = append(options, name)
	}
	sort.Strings(options)
	for _, name := range options {
		value := req.Options[name]
		rendered := cast.ToString(value)
		if param, known := ScannerParams[name]; known && param.Type == "boolean" {
			rendered = BoolToYesNo(cast.ToBool(value))
		}
		records = append(records, kb.Record(name, rendered))
	}

	records = append(records,
		kb.Record("ov_maindbid", strconv.Itoa(mainIndex)),
		kb.Record("TARGET", req.Target),
		kb.Record("port_range", req.Ports))

	records = append(records, CredentialRecords(req.Credentials)...)

	pluginSet, params := e.resolveVTs(req.VTs)
	if len(pluginSet) == 0 {
		return nil, ErrEmptyPluginSet
	}
	records = append(records, kb.Record("plugin_set", strings.Join(pluginSet, ";")))
	records = append(records, params...)

	return records, nil
}

// resolveVTs expands group filters and single OIDs into the plugin set and
// renders the parameter overrides of single VTs. An unknown OID stays in
// the plugin set so the engine can report it, but its parameters cannot be
// typed and are dropped.
func (e *Encoder) resolveVTs(selection VTSelection) (pluginSet []string, params []string) {
	byFamily := e.cache.ByFamily()
	for _, filter := range selection.Groups {
		key, value, ok := strings.Cut(filter, "=")
		if !ok || key != "family" {
			e.logger.Debug().Str("filter", filter).Msg("unsupported VT group filter")
			continue
		}
		pluginSet = append(pluginSet, byFamily[value]...)
	}

	oids := make([]string, 0, len(selection.Single))
	for oid := range selection.Single {
		oids = append(oids, oid)
	}
	sort.Strings(oids)

	for _, oid := range oids {
		pluginSet = append(pluginSet, oid)
		vt, known := e.cache.Get(oid)
		if !known {
			e.logger.Info().Str("oid", oid).Msg("VT not found in the loaded table")
			continue
		}

		overrides := selection.Single[oid]
		paramIDs := make([]string, 0, len(overrides))
		for id := range overrides {
			paramIDs = append(paramIDs, id)
		}
		sort.Strings(paramIDs)

		for _, id := range paramIDs {
			value := overrides[id]
			paramType, declared := vt.ParamType(id)
			if !declared {
				e.logger.Debug().Str("oid", oid).Str("param", id).Msg("undeclared VT parameter, skipping")
				continue
			}
			// The engine treats every timeout as an integer regardless
			// of the declared type.
			checkedType := paramType
			if id == "timeout" {
				checkedType = "integer"
			}
			if !validParamValue(value, checkedType) {
				e.logger.Debug().
					Str("oid", oid).
					Str("param", id).
					Str("type", checkedType).
					Str("value", value).
					Msg("VT parameter value does not match its type")
			}
			name := fmt.Sprintf("%s[%s]:%s", vt.Name, paramType, id)
			params = append(params, kb.Record(name, value))
		}
	}
	return pluginSet, params
}

func validParamValue(value, paramType string) bool {
	switch paramType {
	case "entry", "file", "password", "radio", "sshlogin", "string":
		return true
	case "checkbox":
		return value == "yes" || value == "no"
	case "integer":
		_, err := strconv.Atoi(value)
		return err == nil
	}
	return false
}
