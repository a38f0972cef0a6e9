package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thesprockee/EchoRelay/internal/model"
)

// Collection names shared by every backend. Keeping them here, not in each
// backend package, is what lets fsstore and sqlstore stay ignorant of the
// shapes they store.
const (
	CollectionAccounts  = "accounts"
	CollectionConfigs   = "configs"
	CollectionDocuments = "documents"

	ResourceAccessControlList = "access_control_list"
	ResourceChannelInfo       = "channel_info"
	ResourceLoginSettings     = "login_settings"
)

// GetAccount loads the account keyed by id. ok is false if no such account
// has ever logged in.
func GetAccount(ctx context.Context, s Store, id model.XPlatformId) (model.Account, bool, error) {
	raw, ok, err := s.GetKey(ctx, CollectionAccounts, id.String())
	if err != nil || !ok {
		return model.Account{}, ok, err
	}

	var acc model.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return model.Account{}, false, fmt.Errorf("storage: decode account %s: %w", id, err)
	}
	return acc, true, nil
}

// PutAccount persists acc under its own XPlatformId.
func PutAccount(ctx context.Context, s Store, acc model.Account) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("storage: encode account %s: %w", acc.XPlatformId, err)
	}
	return s.SetKey(ctx, CollectionAccounts, acc.XPlatformId.String(), raw)
}

// GetOrCreateAccount loads the account for id, creating and persisting a
// fresh one on first login, so an account resource always exists by the
// time profile requests are served.
func GetOrCreateAccount(ctx context.Context, s Store, id model.XPlatformId, displayName string) (model.Account, error) {
	acc, ok, err := GetAccount(ctx, s, id)
	if err != nil {
		return model.Account{}, err
	}
	if ok {
		return acc, nil
	}

	acc = model.NewAccount(id, displayName)
	if err := PutAccount(ctx, s, acc); err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

// GetComposite loads one Config/Document style resource, keyed by a caller-
// chosen collection and a composite key such as "(type, identifier)" or
// "(type, language)".
func GetComposite(ctx context.Context, s Store, collection, key string) ([]byte, bool, error) {
	return s.GetKey(ctx, collection, key)
}
