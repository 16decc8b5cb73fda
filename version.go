// Package ruleup provides the version information for ruleup.
package ruleup

// Version is the current version of ruleup.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
