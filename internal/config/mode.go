package config

// Mode represents which direction the bridge runs in
type Mode string

const (
	// ModeWebsockify accepts WebSocket connections and relays them to TCP
	ModeWebsockify Mode = "websockify"

	// ModeUnwebsockify accepts TCP connections and relays them to a WebSocket
	ModeUnwebsockify Mode = "unwebsockify"
)

// IsValid checks if the mode is valid
func (m Mode) IsValid() bool {
	return m == ModeWebsockify || m == ModeUnwebsockify
}

// String returns the string representation
func (m Mode) String() string {
	return string(m)
}
