package prefs

import (
	"sort"

	"github.com/janowagner/ospd-openvas/pkg/kb"
)

// Credential holds the fields of one per-service credential. Which fields
// are read depends on the service.
type Credential struct {
	Type     string
	Username string
	Password string
	Port     string

	// ssh only
	Private string

	// snmp only
	Community        string
	AuthAlgorithm    string
	PrivacyPassword  string
	PrivacyAlgorithm string
}

// CredentialRecords renders the credentials of a scan as engine preference
// records. Services outside the supported set (ssh, smb, esxi, snmp) are
// skipped without error. Services are processed in sorted order so output
// is deterministic.
func CredentialRecords(credentials map[string]Credential) []string {
	services := make([]string, 0, len(credentials))
	for service := range credentials {
		services = append(services, service)
	}
	sort.Strings(services)

	var records []string
	for _, service := range services {
		cred := credentials[service]
		switch service {
		case "ssh":
			records = append(records,
				kb.Record("auth_port_ssh", cred.Port),
				kb.Record("SSH Authorization[entry]:SSH login name:", cred.Username))
			if cred.Type == "up" {
				records = append(records,
					kb.Record("SSH Authorization[password]:SSH password (unsafe!):", cred.Password))
			} else {
				records = append(records,
					kb.Record("SSH Authorization[password]:SSH key passphrase:", cred.Password),
					kb.Record("SSH Authorization[file]:SSH private key:", cred.Private))
			}
		case "smb":
			records = append(records,
				kb.Record("SMB Authorization[entry]:SMB login:", cred.Username),
				kb.Record("SMB Authorization[password]:SMB password :", cred.Password))
		case "esxi":
			records = append(records,
				kb.Record("ESXi Authorization[entry]:ESXi login name:", cred.Username),
				kb.Record("ESXi Authorization[password]:ESXi login password:", cred.Password))
		case "snmp":
			records = append(records,
				kb.Record("SNMP Authorization[password]:SNMP Community:", cred.Community),
				kb.Record("SNMP Authorization[entry]:SNMPv3 Username:", cred.Username),
				kb.Record("SNMP Authorization[password]:SNMPv3 Password:", cred.Password),
				kb.Record("SNMP Authorization[radio]:SNMPv3 Authentication Algorithm:", cred.AuthAlgorithm),
				kb.Record("SNMP Authorization[password]:SNMPv3 Privacy Password:", cred.PrivacyPassword),
				kb.Record("SNMP Authorization[radio]:SNMPv3 Privacy Algorithm:", cred.PrivacyAlgorithm))
		}
	}
	return records
}
