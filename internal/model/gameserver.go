package model

import "fmt"

// SessionState is a RegisteredGameServer's position in its session
// lifecycle: idle -> session-locked -> session-active -> idle, or removed
// on disconnect.
type SessionState string

const (
	StateIdle          SessionState = "idle"
	StateSessionLocked SessionState = "session-locked"
	StateSessionActive SessionState = "session-active"
	StateRemoved       SessionState = "removed"
)

// RegisteredGameServer is a dedicated game server's registration record,
// owned by the registry. ServerID, RegionSymbol, and
// VersionLock are set at registration and never change; everything else is
// mutated under the registry's per-record lock.
type RegisteredGameServer struct {
	ServerID        uint64 `json:"server_id"`
	InternalAddress string `json:"internal_address"`
	ExternalAddress string `json:"external_address"`
	Port            uint16 `json:"port"`
	RegionSymbol    int64  `json:"region_symbol"`
	VersionLock     int64  `json:"version_lock"`
	IsPublic        bool   `json:"is_public"`

	State            SessionState `json:"state"`
	SessionGUID      string       `json:"session_guid,omitempty"`
	LevelSymbol      int64        `json:"level_symbol,omitempty"`
	GameModeSymbol   int64        `json:"game_mode_symbol,omitempty"`
	Capacity         int          `json:"capacity"`
	ParticipantCount int          `json:"participant_count"`

	LastPingRTTMillis int64 `json:"last_ping_rtt_ms,omitempty"`
}

// Endpoint is the host:port clients should connect to for this server.
func (g *RegisteredGameServer) Endpoint() string {
	return fmt.Sprintf("%s:%d", g.ExternalAddress, g.Port)
}
