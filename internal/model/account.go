package model

import "time"

// ClientProfile is the mutable-by-owner half of an account, replaced
// wholesale by UpdateProfile.
type ClientProfile struct {
	XPlatformId XPlatformId            `json:"xplatform_id"`
	DisplayName string                 `json:"display_name"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

// ServerProfile is the authoritative half of an account, mutated only by the
// Login service (directly on UpdateProfile, or via a merged delta from
// UserServerProfileUpdateRequest).
type ServerProfile struct {
	XPlatformId XPlatformId            `json:"xplatform_id"`
	DisplayName string                 `json:"display_name"`
	Loadout     map[string]interface{} `json:"loadout,omitempty"`
	Stats       map[string]interface{} `json:"stats,omitempty"`
	CreateTime  int64                  `json:"create_time"`
	UpdateTime  int64                  `json:"update_time"`
	ModifyTime  int64                  `json:"modify_time"`
}

// Account is the persisted AccountResource, identified by XPlatformId.
// Invariant: Server.XPlatformId == XPlatformId.
type Account struct {
	XPlatformId XPlatformId   `json:"xplatform_id"`
	Client      ClientProfile `json:"client"`
	Server      ServerProfile `json:"server"`
}

// NewAccount builds a fresh account for a first-time login.
func NewAccount(id XPlatformId, displayName string) Account {
	now := time.Now().Unix()
	return Account{
		XPlatformId: id,
		Client: ClientProfile{
			XPlatformId: id,
			DisplayName: displayName,
		},
		Server: ServerProfile{
			XPlatformId: id,
			DisplayName: displayName,
			CreateTime:  now,
			UpdateTime:  now,
			ModifyTime:  now,
		},
	}
}
