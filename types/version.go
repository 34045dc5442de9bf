package types

// Version is the canonical project version.
// The server, the client CLI, and the wire protocol share this version.
const Version = "0.3.0"

// ProtocolVersion is the wire protocol revision spoken by this build.
// It only changes when framing or the command set changes.
const ProtocolVersion = "1"
