// Package document resolves localized documents and channel lists out of
// storage. It is not a network service of its own: ChannelInfoRequest and
// DocumentRequestv2 arrive on the Login service, and no /document path is
// routed. Keeping the lookup here rather than inline in login splits the
// storage-facing helpers from the per-path handler.
package document

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/storage"
	"github.com/thesprockee/EchoRelay/internal/symbol"
)

// Lookup resolves a (docType, language) document from the documents
// collection. Both names must translate through the symbol cache before
// the storage lookup runs; a name the cache does not know is reported as
// a missing document, not a storage miss.
func Lookup(ctx context.Context, s storage.Store, syms *symbol.Cache, docType, language string) (json.RawMessage, error) {
	if _, ok := syms.Symbol(docType); !ok {
		return nil, fmt.Errorf("document: unknown document type %q", docType)
	}
	if _, ok := syms.Symbol(language); !ok {
		return nil, fmt.Errorf("document: unknown language %q", language)
	}

	key := docType + ":" + language
	raw, ok, err := storage.GetComposite(ctx, s, storage.CollectionDocuments, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("document: no %s document for language %s", docType, language)
	}
	return json.RawMessage(raw), nil
}

// Channels loads the channel list broadcast at login, resolving each
// channel's Name to a Symbol via syms.
func Channels(ctx context.Context, s storage.Store, syms *symbol.Cache) ([]model.ChannelInfo, error) {
	raw, ok, err := s.GetResource(ctx, storage.ResourceChannelInfo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var channels []model.ChannelInfo
	if err := json.Unmarshal(raw, &channels); err != nil {
		return nil, fmt.Errorf("document: decode channel_info: %w", err)
	}

	for i := range channels {
		channels[i].Symbol = syms.AddHashed(channels[i].Name)
	}
	return channels, nil
}

// LoginSettings loads the single-valued login_settings resource broadcast
// on every successful login.
func LoginSettings(ctx context.Context, s storage.Store) (json.RawMessage, error) {
	raw, ok, err := s.GetResource(ctx, storage.ResourceLoginSettings)
	if err != nil {
		return nil, err
	}
	if !ok {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(raw), nil
}
