// Package model holds the relay's data-model types: account and
// server-registration resources, the access control list, and the profile
// delta-merge algorithm used by the Login service.
package model

import "fmt"

// PlatformCode identifies which first-party platform an XPlatformId was
// issued by. The canonical string rendering embeds it, so two accounts on
// different platforms never collide even if their raw account ids do.
type PlatformCode string

const (
	PlatformOVR   PlatformCode = "OVR"
	PlatformSteam PlatformCode = "STM"
	PlatformMeta  PlatformCode = "MET"
	PlatformDmo   PlatformCode = "DMO" // demo / headless test accounts
)

// XPlatformId is the canonical primary key for an account: a platform code
// paired with that platform's account id. Its String form is the one and
// only textual representation used as a storage key, so two XPlatformId
// values with the same fields always render identically.
type XPlatformId struct {
	Platform  PlatformCode
	AccountID uint64
}

// String renders the canonical, storage-key-safe form, e.g. "OVR-4098123".
func (x XPlatformId) String() string {
	return fmt.Sprintf("%s-%d", x.Platform, x.AccountID)
}

// ParseXPlatformId parses the canonical form back into an XPlatformId.
func ParseXPlatformId(s string) (XPlatformId, error) {
	var plat string
	var id uint64
	if _, err := fmt.Sscanf(s, "%3s-%d", &plat, &id); err != nil {
		return XPlatformId{}, fmt.Errorf("model: invalid xplatform id %q: %w", s, err)
	}
	return XPlatformId{Platform: PlatformCode(plat), AccountID: id}, nil
}

// MarshalText implements encoding.TextMarshaler so XPlatformId can be a map
// key or JSON field that always serialises to its canonical string.
func (x XPlatformId) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (x *XPlatformId) UnmarshalText(text []byte) error {
	v, err := ParseXPlatformId(string(text))
	if err != nil {
		return err
	}
	*x = v
	return nil
}
