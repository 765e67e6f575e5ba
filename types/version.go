package types

import "strings"

// Version is the canonical project version.
// The CLI, the broker wire contract and the ledger records share this version
// per the lockstep versioning policy.
const Version = "0.4.0"

// ContractVersion is the broker wire contract version.
// Clients refuse to talk to a broker announcing a different major version.
const ContractVersion = Version

// ContractCompatible reports whether two contract versions share a major
// version. An empty version never matches.
func ContractCompatible(a, b string) bool {
	ma, mb := contractMajor(a), contractMajor(b)
	return ma != "" && ma == mb
}

func contractMajor(v string) string {
	v = strings.TrimPrefix(v, "v")
	major, _, _ := strings.Cut(v, ".")
	return major
}
