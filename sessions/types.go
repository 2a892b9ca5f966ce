package sessions

import "errors"

// ErrSessionNotFound is returned by Registry.Lookup for identities that were
// never issued or have already been removed.
var ErrSessionNotFound = errors.New("session not found")

// Session represents a negotiated MCP session as seen by capability code.
// Implementations MUST be safe for concurrent use.
type Session interface {
	SessionID() string
	// ProtocolVersion is the negotiated MCP protocol version, empty until
	// initialize completes.
	ProtocolVersion() string
	// ClientInfo is the client implementation reported during initialize.
	ClientInfo() ClientInfo
}

// ClientInfo identifies the client connecting to the server.
type ClientInfo struct {
	Name    string
	Version string
}
