// Package acl implements the AccessControlList resource: ordered
// allow/deny rules over XPlatformId, loaded from storage, checked before
// any profile is read for a logging-in user.
package acl

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/storage"
)

const resourceName = "access_control_list"

// List is the loaded, cached set of ACL rules.
type List struct {
	store storage.Store

	mu    sync.RWMutex
	rules []model.ACLRule
}

// Load reads the ACL resource from store. A missing resource means an empty
// rule set (default allow), not an error.
func Load(ctx context.Context, store storage.Store) (*List, error) {
	l := &List{store: store}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads the ACL resource from storage.
func (l *List) Reload(ctx context.Context) error {
	raw, ok, err := l.store.GetResource(ctx, resourceName)
	if err != nil {
		return err
	}

	var rules []model.ACLRule
	if ok {
		if err := json.Unmarshal(raw, &rules); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.rules = rules
	l.mu.Unlock()
	return nil
}

// SetRules replaces the rule set and persists it.
func (l *List) SetRules(ctx context.Context, rules []model.ACLRule) error {
	raw, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	if err := l.store.SetResource(ctx, resourceName, raw); err != nil {
		return err
	}

	l.mu.Lock()
	l.rules = rules
	l.mu.Unlock()
	return nil
}

// Check reports whether id is authorized. Rules are evaluated in order and
// the last matching rule wins (standard firewall-list semantics), so a
// narrower exception can be appended after a broad platform-wide deny. An
// empty rule set allows everything.
func (l *List) Check(id model.XPlatformId) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	allowed := true
	for _, r := range l.rules {
		if r.Matches(id) {
			allowed = r.Action == model.ACLAllow
		}
	}
	return allowed
}
