package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/thesprockee/EchoRelay/internal/symbol"
)

// Message type names, hashed into type symbols via symbol.Hash the same way
// every other named thing in the relay is. Bodies are JSON blobs: the
// framing envelope is fixed, while a deployment's exact per-message binary
// layout lives in protocol documentation this core does not own.
const (
	MsgLoginRequest                   = "login_request"
	MsgLoginSuccess                   = "login_success"
	MsgLoginFailure                   = "login_failure"
	MsgTcpConnectionUnrequireEvent    = "tcp_connection_unrequire_event"
	MsgLoginSettings                  = "login_settings"
	MsgLoggedInUserProfileRequest     = "logged_in_user_profile_request"
	MsgLoggedInUserProfileSuccess     = "logged_in_user_profile_success"
	MsgLoggedInUserProfileFailure     = "logged_in_user_profile_failure"
	MsgOtherUserProfileRequest        = "other_user_profile_request"
	MsgOtherUserProfileSuccess        = "other_user_profile_success"
	MsgOtherUserProfileFailure        = "other_user_profile_failure"
	MsgUpdateProfile                  = "update_profile"
	MsgUpdateProfileSuccess           = "update_profile_success"
	MsgUpdateProfileFailure           = "update_profile_failure"
	MsgUserServerProfileUpdateRequest = "user_server_profile_update_request"
	MsgUserServerProfileUpdateSuccess = "user_server_profile_update_success"
	MsgUserServerProfileUpdateFailure = "user_server_profile_update_failure"
	MsgChannelInfoRequest             = "channel_info_request"
	MsgChannelInfoResponse            = "channel_info_response"
	MsgDocumentRequestv2              = "document_request_v2"
	MsgDocumentSuccess                = "document_success"
	MsgDocumentFailure                = "document_failure"

	MsgConfigRequest = "config_request"
	MsgConfigSuccess = "config_success"
	MsgConfigFailure = "config_failure"

	MsgTransactionRequest = "transaction_request"
	MsgTransactionAck     = "transaction_ack"

	MsgRegisterGameServer    = "register_game_server"
	MsgRegistrationSuccess   = "registration_success"
	MsgRegistrationFailure   = "registration_failure"
	MsgLobbySessionStartedv4 = "lobby_session_started_v4"
	MsgLobbySessionEnded     = "lobby_session_ended"
	MsgPlayerSessionJoined   = "player_session_joined"
	MsgPlayerSessionLeft     = "player_session_left"
	MsgRegistrationUpdate    = "registration_update"

	MsgLobbyCreateSessionRequestv9 = "lobby_create_session_request_v9"
	MsgLobbyFindSessionRequestv11  = "lobby_find_session_request_v11"
	MsgLobbyJoinSessionRequestv7   = "lobby_join_session_request_v7"
	MsgLobbySessionNew             = "lobby_session_new"
	MsgLobbySessionSuccessv5       = "lobby_session_success_v5"
	MsgLobbySessionFailure         = "lobby_session_failure"

	// MsgUnknown tags a message whose type_symbol resolved to no known
	// name. Not fatal: the message is logged and ignored by the handler.
	MsgUnknown = "__unknown__"
)

// SeedMessageTypes registers every message type name in c, so Symbol/Name
// resolve for the control vocabulary before any game-asset manifest loads.
func SeedMessageTypes(c *symbol.Cache) {
	for _, name := range []string{
		MsgLoginRequest, MsgLoginSuccess, MsgLoginFailure,
		MsgTcpConnectionUnrequireEvent, MsgLoginSettings,
		MsgLoggedInUserProfileRequest, MsgLoggedInUserProfileSuccess, MsgLoggedInUserProfileFailure,
		MsgOtherUserProfileRequest, MsgOtherUserProfileSuccess, MsgOtherUserProfileFailure,
		MsgUpdateProfile, MsgUpdateProfileSuccess, MsgUpdateProfileFailure,
		MsgUserServerProfileUpdateRequest, MsgUserServerProfileUpdateSuccess, MsgUserServerProfileUpdateFailure,
		MsgChannelInfoRequest, MsgChannelInfoResponse,
		MsgDocumentRequestv2, MsgDocumentSuccess, MsgDocumentFailure,
		MsgConfigRequest, MsgConfigSuccess, MsgConfigFailure,
		MsgTransactionRequest, MsgTransactionAck,
		MsgRegisterGameServer, MsgRegistrationSuccess, MsgRegistrationFailure,
		MsgLobbySessionStartedv4, MsgLobbySessionEnded,
		MsgPlayerSessionJoined, MsgPlayerSessionLeft, MsgRegistrationUpdate,
		MsgLobbyCreateSessionRequestv9, MsgLobbyFindSessionRequestv11, MsgLobbyJoinSessionRequestv7,
		MsgLobbySessionNew, MsgLobbySessionSuccessv5, MsgLobbySessionFailure,
	} {
		c.AddHashed(name)
	}
}

// EncodeJSON builds a RawMessage whose body is the JSON encoding of v, typed
// by name's symbol in c.
func EncodeJSON(c *symbol.Cache, name string, v interface{}) (RawMessage, error) {
	sym, ok := c.Symbol(name)
	if !ok {
		return RawMessage{}, fmt.Errorf("wire: unknown message name %q", name)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return RawMessage{}, fmt.Errorf("wire: encode %q: %w", name, err)
	}
	return RawMessage{Type: sym, Body: body}, nil
}

// DecodeJSON resolves m's type symbol against c and, if it names a known
// message, unmarshals its JSON body into v. It returns the resolved name
// (MsgUnknown if the symbol is unregistered) and ok. ok is false for an
// unregistered symbol or a body that fails to unmarshal into v; with a nil v
// or an empty body nothing is decoded and ok is true.
func DecodeJSON(c *symbol.Cache, m RawMessage, v interface{}) (name string, ok bool) {
	name, known := c.Name(m.Type)
	if !known {
		return MsgUnknown, false
	}
	if v == nil {
		return name, true
	}
	if len(bytes.TrimSpace(m.Body)) == 0 {
		return name, true
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return name, false
	}
	return name, true
}

// --- Message bodies -------------------------------------------------------
//
// Fields mirror the service operations each message drives. These JSON
// bodies are this core's own concrete encoding of that vocabulary.

type LoginRequest struct {
	UserID            string          `json:"user_id"`
	AccountInfo       json.RawMessage `json:"account_info,omitempty"`
	ClientSessionGUID string          `json:"client_session_guid"`
}

type LoginSuccess struct {
	UserID      string `json:"user_id"`
	SessionGUID string `json:"session_guid"`
}

type LoginFailure struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type LoginSettingsMsg struct {
	Settings json.RawMessage `json:"settings"`
}

type LoggedInUserProfileRequest struct {
	UserID      string `json:"user_id"`
	SessionGUID string `json:"session_guid"`
}

type LoggedInUserProfileSuccess struct {
	UserID  string          `json:"user_id"`
	Profile json.RawMessage `json:"profile"`
}

type TypedFailure struct {
	UserID  string `json:"user_id,omitempty"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type OtherUserProfileRequest struct {
	UserID string `json:"user_id"`
}

type OtherUserProfileSuccess struct {
	UserID  string          `json:"user_id"`
	Profile json.RawMessage `json:"server_profile"`
}

type UpdateProfileRequest struct {
	UserID        string          `json:"user_id"`
	SessionGUID   string          `json:"session_guid"`
	ClientProfile json.RawMessage `json:"client_profile"`
}

type UpdateProfileSuccess struct {
	UserID string `json:"user_id"`
}

type UserServerProfileUpdateRequest struct {
	UserID string          `json:"user_id"`
	Delta  json.RawMessage `json:"delta"`
}

type UserServerProfileUpdateSuccess struct {
	UserID string `json:"user_id"`
}

type ChannelInfoRequest struct{}

type ChannelInfoResponse struct {
	Channels json.RawMessage `json:"channels"`
}

type DocumentRequestv2 struct {
	Type     string `json:"type"`
	Language string `json:"language"`
}

type DocumentSuccess struct {
	Type     string          `json:"type"`
	Language string          `json:"language"`
	Document json.RawMessage `json:"document"`
}

type DocumentFailure struct {
	Type     string `json:"type"`
	Language string `json:"language"`
	Message  string `json:"message"`
}

type ConfigRequest struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type ConfigSuccess struct {
	Type       string          `json:"type"`
	Identifier string          `json:"identifier"`
	Config     json.RawMessage `json:"config"`
}

type ConfigFailure struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

type TransactionRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TransactionAck struct {
	Kind string `json:"kind"`
}

type RegisterGameServer struct {
	ServerID        uint64 `json:"server_id"`
	InternalAddress string `json:"internal_address"`
	ExternalAddress string `json:"external_address"`
	Port            uint16 `json:"port"`
	RegionSymbol    int64  `json:"region_symbol"`
	VersionLock     int64  `json:"version_lock"`
	IsPublic        bool   `json:"is_public"`
	Capacity        int    `json:"capacity"`
}

type RegistrationSuccess struct {
	ServerID uint64 `json:"server_id"`
}

type RegistrationFailure struct {
	ServerID uint64 `json:"server_id"`
	Reason   string `json:"reason"`
}

type LobbySessionStartedv4 struct {
	SessionGUID string `json:"session_guid"`
}

type LobbySessionEnded struct {
	SessionGUID string `json:"session_guid"`
}

type PlayerSessionJoined struct {
	SessionGUID string `json:"session_guid"`
	UserID      string `json:"user_id"`
}

type PlayerSessionLeft struct {
	SessionGUID string `json:"session_guid"`
	UserID      string `json:"user_id"`
}

type RegistrationUpdate struct {
	IsPublic *bool `json:"is_public,omitempty"`
	Capacity *int  `json:"capacity,omitempty"`
}

type LobbyCreateSessionRequestv9 struct {
	UserID         string `json:"user_id"`
	LevelSymbol    int64  `json:"level_symbol"`
	GameModeSymbol int64  `json:"game_mode_symbol"`
	RegionSymbol   int64  `json:"region_symbol,omitempty"`
	VersionLock    int64  `json:"version_lock"`
	ClientPingMs   int    `json:"client_ping_ms,omitempty"`
}

type LobbyFindSessionRequestv11 struct {
	UserID         string `json:"user_id"`
	LevelSymbol    int64  `json:"level_symbol"`
	GameModeSymbol int64  `json:"game_mode_symbol"`
	RegionSymbol   int64  `json:"region_symbol,omitempty"`
	VersionLock    int64  `json:"version_lock"`
	ClientPingMs   int    `json:"client_ping_ms,omitempty"`
}

type LobbyJoinSessionRequestv7 struct {
	UserID      string `json:"user_id"`
	SessionGUID string `json:"session_guid"`
	VersionLock int64  `json:"version_lock"`
}

type LobbySessionNew struct {
	ServerID       uint64 `json:"server_id"`
	SessionGUID    string `json:"session_guid"`
	LevelSymbol    int64  `json:"level_symbol"`
	GameModeSymbol int64  `json:"game_mode_symbol"`
}

type LobbySessionSuccessv5 struct {
	SessionGUID string `json:"session_guid"`
	Endpoint    string `json:"endpoint"`
	TeamIndex   int    `json:"team_index"`
}

type LobbySessionFailure struct {
	Reason string `json:"reason"`
}
