package format

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/janowagner/ospd-openvas/pkg/scanexec"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "host is alive", 60, "host is alive"},
		{"exactly max", "abcde", 5, "abcde"},
		{"ascii cut", "abcdefghij", 8, "abcde..."},
		{"multi-byte cut on rune boundary", "Überprüfung überfälliger Zertifikate", 14, "Überprüfung..."},
		{"cjk cut", "脆弱性が検出されました", 8, "脆弱性が検..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			require.Equal(t, tt.want, got)
			require.True(t, utf8.ValidString(got))
		})
	}
}

func TestScanSummaryKeepsValidUTF8(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf)

	long := strings.Repeat("überfällig ", 10)
	f.ScanSummary("scan-1", "10.0.0.1", scanexec.StateFinished, []scanexec.Result{
		{Kind: scanexec.ResultLog, Host: "10.0.0.1", Port: "443/tcp", Name: "Zertifikatsprüfung", Value: long},
	})

	out := buf.String()
	require.True(t, utf8.ValidString(out))
	require.Contains(t, out, "Zertifikatsprüfung")
	require.Contains(t, out, "...")
}
