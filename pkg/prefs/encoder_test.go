package prefs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/janowagner/ospd-openvas/pkg/kb"
	"github.com/janowagner/ospd-openvas/pkg/vtcache"
)

const (
	oidA = "1.3.6.1.4.1.25623.1.0.100315"
	oidB = "1.3.6.1.4.1.25623.1.0.900001"
)

func testCache(t *testing.T) *vtcache.Cache {
	t.Helper()
	ctx := context.Background()
	store := kb.NewMemoryStore(2)

	require.NoError(t, store.Push(ctx, kb.CacheIndex, "nvticache/version", "1"))
	require.NoError(t, store.Push(ctx, kb.CacheIndex, "nvticache/list",
		"a.nasl|||"+oidA,
		"b.nasl|||"+oidB))
	require.NoError(t, store.Push(ctx, kb.CacheIndex, "nvt:"+oidA+":meta",
		"name|||Ping Host",
		"family|||Port scanners"))
	require.NoError(t, store.Push(ctx, kb.CacheIndex, "nvt:"+oidA+":prefs",
		"do_tcp|||checkbox|||Do a TCP ping|||no",
		"timeout|||entry|||Timeout|||5"))
	require.NoError(t, store.Push(ctx, kb.CacheIndex, "nvt:"+oidB+":meta",
		"name|||Example Vulnerability",
		"family|||Web application abuses"))

	cache := vtcache.NewCache(store, nil)
	require.NoError(t, cache.Load(ctx))
	return cache
}

func TestEncodeRecordOrder(t *testing.T) {
	encoder := NewEncoder(testCache(t))

	req := &Request{
		ScanID: "scan-1",
		Target: "10.0.0.1",
		Ports:  "80,443",
		Options: map[string]any{
			"safe_checks":   1,
			"optimize_test": 5,
		},
		VTs: VTSelection{Single: map[string]map[string]string{oidA: nil}},
	}
	records, err := encoder.Encode(req, 4)
	require.NoError(t, err)

	require.Equal(t, []string{
		"optimize_test|||5",
		"safe_checks|||yes",
		"ov_maindbid|||4",
		"TARGET|||10.0.0.1",
		"port_range|||80,443",
		"plugin_set|||" + oidA,
	}, records)
}

func TestEncodeBooleanOptionsRenderedYesNo(t *testing.T) {
	encoder := NewEncoder(testCache(t))

	req := &Request{
		ScanID:  "scan-1",
		Target:  "10.0.0.1",
		Ports:   "80",
		Options: map[string]any{"drop_privileges": 0, "cgi_path": "/cgi-bin"},
		VTs:     VTSelection{Single: map[string]map[string]string{oidA: nil}},
	}
	records, err := encoder.Encode(req, 1)
	require.NoError(t, err)

	require.Contains(t, records, "drop_privileges|||no")
	require.Contains(t, records, "cgi_path|||/cgi-bin")
}

func TestEncodePluginSetAndParams(t *testing.T) {
	encoder := NewEncoder(testCache(t))

	req := &Request{
		ScanID: "scan-1",
		Target: "10.0.0.1",
		Ports:  "80",
		VTs: VTSelection{
			Single: map[string]map[string]string{
				oidA: {"do_tcp": "yes", "timeout": "320"},
			},
			Groups: []string{"family=Web application abuses"},
		},
	}
	records, err := encoder.Encode(req, 1)
	require.NoError(t, err)

	var pluginSet string
	for _, record := range records {
		if strings.HasPrefix(record, "plugin_set|||") {
			pluginSet = record
		}
	}
	require.Equal(t, "plugin_set|||"+oidB+";"+oidA, pluginSet)
	require.Contains(t, records, "Ping Host[checkbox]:do_tcp|||yes")
	// timeout keeps its declared type in the record name even though the
	// value is checked as an integer.
	require.Contains(t, records, "Ping Host[entry]:timeout|||320")
}

func TestEncodeSkipsUndeclaredParams(t *testing.T) {
	encoder := NewEncoder(testCache(t))

	req := &Request{
		ScanID: "scan-1",
		Target: "10.0.0.1",
		Ports:  "80",
		VTs: VTSelection{
			Single: map[string]map[string]string{
				oidA: {"nonexistent": "x"},
			},
		},
	}
	records, err := encoder.Encode(req, 1)
	require.NoError(t, err)

	for _, record := range records {
		require.NotContains(t, record, "nonexistent")
	}
}

func TestEncodeInvalidParamValueStillForwarded(t *testing.T) {
	encoder := NewEncoder(testCache(t))

	req := &Request{
		ScanID: "scan-1",
		Target: "10.0.0.1",
		Ports:  "80",
		VTs: VTSelection{
			Single: map[string]map[string]string{
				oidA: {"do_tcp": "maybe"},
			},
		},
	}
	records, err := encoder.Encode(req, 1)
	require.NoError(t, err)
	require.Contains(t, records, "Ping Host[checkbox]:do_tcp|||maybe")
}

func TestEncodeUnknownOIDKeptInPluginSet(t *testing.T) {
	encoder := NewEncoder(testCache(t))

	req := &Request{
		ScanID: "scan-1",
		Target: "10.0.0.1",
		Ports:  "80",
		VTs: VTSelection{
			Single: map[string]map[string]string{
				"9.9.9": {"p": "v"},
			},
		},
	}
	records, err := encoder.Encode(req, 1)
	require.NoError(t, err)

	require.Contains(t, records, "plugin_set|||9.9.9")
	for _, record := range records {
		require.False(t, strings.HasSuffix(record, "|||v"), "unknown OID params cannot be typed: %s", record)
	}
}

func TestEncodeEmptySelection(t *testing.T) {
	encoder := NewEncoder(testCache(t))

	req := &Request{
		ScanID: "scan-1",
		Target: "10.0.0.1",
		Ports:  "80",
	}
	_, err := encoder.Encode(req, 1)
	require.ErrorIs(t, err, ErrEmptyPluginSet)
}
