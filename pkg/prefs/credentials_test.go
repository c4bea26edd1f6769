package prefs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialRecordsSSHPassword(t *testing.T) {
	records := CredentialRecords(map[string]Credential{
		"ssh": {
			Type:     "up",
			Username: "root",
			Password: "secret",
			Port:     "22",
			Private:  "should-not-appear",
		},
	})

	require.Equal(t, []string{
		"auth_port_ssh|||22",
		"SSH Authorization[entry]:SSH login name:|||root",
		"SSH Authorization[password]:SSH password (unsafe!):|||secret",
	}, records)
}

func TestCredentialRecordsSSHKey(t *testing.T) {
	records := CredentialRecords(map[string]Credential{
		"ssh": {
			Type:     "usk",
			Username: "root",
			Password: "passphrase",
			Private:  "-----BEGIN KEY-----",
		},
	})

	require.Equal(t, []string{
		"auth_port_ssh|||",
		"SSH Authorization[entry]:SSH login name:|||root",
		"SSH Authorization[password]:SSH key passphrase:|||passphrase",
		"SSH Authorization[file]:SSH private key:|||-----BEGIN KEY-----",
	}, records)
}

func TestCredentialRecordsSMBAndESXi(t *testing.T) {
	records := CredentialRecords(map[string]Credential{
		"smb":  {Username: "admin", Password: "pw"},
		"esxi": {Username: "esx", Password: "pw2"},
	})

	// Services are rendered in sorted order: esxi before smb.
	require.Equal(t, []string{
		"ESXi Authorization[entry]:ESXi login name:|||esx",
		"ESXi Authorization[password]:ESXi login password:|||pw2",
		"SMB Authorization[entry]:SMB login:|||admin",
		"SMB Authorization[password]:SMB password :|||pw",
	}, records)
}

func TestCredentialRecordsSNMP(t *testing.T) {
	records := CredentialRecords(map[string]Credential{
		"snmp": {
			Username:         "v3user",
			Password:         "v3pass",
			Community:        "public",
			AuthAlgorithm:    "sha1",
			PrivacyPassword:  "priv",
			PrivacyAlgorithm: "aes",
		},
	})

	require.Equal(t, []string{
		"SNMP Authorization[password]:SNMP Community:|||public",
		"SNMP Authorization[entry]:SNMPv3 Username:|||v3user",
		"SNMP Authorization[password]:SNMPv3 Password:|||v3pass",
		"SNMP Authorization[radio]:SNMPv3 Authentication Algorithm:|||sha1",
		"SNMP Authorization[password]:SNMPv3 Privacy Password:|||priv",
		"SNMP Authorization[radio]:SNMPv3 Privacy Algorithm:|||aes",
	}, records)
}

func TestCredentialRecordsUnknownServiceSkipped(t *testing.T) {
	records := CredentialRecords(map[string]Credential{
		"telnet": {Username: "x", Password: "y"},
	})
	require.Empty(t, records)
}

func TestBoolToYesNo(t *testing.T) {
	require.Equal(t, "yes", BoolToYesNo(true))
	require.Equal(t, "no", BoolToYesNo(false))
}
