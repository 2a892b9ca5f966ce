package mcp

// LatestProtocolVersion is the newest protocol revision this module speaks.
const LatestProtocolVersion = "2025-06-18"

// SupportedProtocolVersions lists every negotiable revision, newest first.
var SupportedProtocolVersions = []string{
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}

// NegotiateProtocolVersion returns the client's requested revision when it is
// supported and LatestProtocolVersion otherwise.
func NegotiateProtocolVersion(requested string) string {
	for _, v := range SupportedProtocolVersions {
		if v == requested {
			return v
		}
	}
	return LatestProtocolVersion
}
