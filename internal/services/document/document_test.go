package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesprockee/EchoRelay/internal/storage"
	"github.com/thesprockee/EchoRelay/internal/storage/fsstore"
	"github.com/thesprockee/EchoRelay/internal/symbol"
)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	s := fsstore.New(t.TempDir(), false)
	require.NoError(t, s.Open(context.Background()))
	return s
}

func TestLookupFoundAndMissing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	syms := symbol.New()
	symbol.Seed(syms)

	require.NoError(t, s.SetKey(ctx, storage.CollectionDocuments, "eula:en", []byte(`{"body":"hi"}`)))

	doc, err := Lookup(ctx, s, syms, "eula", "en")
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"hi"}`, string(doc))

	// "fr" never enters the symbol cache, so the lookup fails before
	// storage is consulted.
	_, err = Lookup(ctx, s, syms, "eula", "fr")
	assert.Error(t, err)
}

func TestLookupRejectsUnknownDocumentType(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	syms := symbol.New()
	symbol.Seed(syms)

	_, err := Lookup(ctx, s, syms, "not-a-doc-type", "en")
	assert.Error(t, err)
}

func TestLookupMissingStoredDocument(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	syms := symbol.New()
	symbol.Seed(syms)

	// Both names resolve, but nothing is stored under privacy:en.
	_, err := Lookup(ctx, s, syms, "privacy", "en")
	assert.Error(t, err)
}

func TestChannelsAssignsSymbolsToEachName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	syms := symbol.New()

	require.NoError(t, s.SetResource(ctx, storage.ResourceChannelInfo, []byte(`[{"name":"channel.global"},{"name":"channel.team"}]`)))

	channels, err := Channels(ctx, s, syms)
	require.NoError(t, err)
	require.Len(t, channels, 2)

	for _, c := range channels {
		sym, ok := syms.Symbol(c.Name)
		require.True(t, ok)
		assert.Equal(t, sym, c.Symbol)
	}
}

func TestChannelsMissingResourceReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	syms := symbol.New()

	channels, err := Channels(ctx, s, syms)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestLoginSettingsMissingResourceReturnsEmptyObject(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	settings, err := LoginSettings(ctx, s)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(settings))
}

func TestLoginSettingsReturnsStoredValue(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SetResource(ctx, storage.ResourceLoginSettings, []byte(`{"region":"us"}`)))

	settings, err := LoginSettings(ctx, s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"region":"us"}`, string(settings))
}
