// ABOUTME: Version constants for the application
// ABOUTME: Reported in logs and diagnostic output
package version

const (
	Version      = "0.1.0"
	Product      = "VoiceDeck"
	Manufacturer = "VoiceDeck Project"
)
