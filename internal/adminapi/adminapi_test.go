package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesprockee/EchoRelay/internal/serverdb"
)

type fakePeerCounter struct {
	name  string
	count int
}

func (f fakePeerCounter) Name() string   { return f.name }
func (f fakePeerCounter) PeerCount() int { return f.count }

func TestServersEndpointRequiresAPIKeyWhenConfigured(t *testing.T) {
	reg := serverdb.NewRegistry()
	api := New("secret", reg)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/servers")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/servers?apikey=secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestServersEndpointWithoutAPIKeyConfiguredIsOpen(t *testing.T) {
	reg := serverdb.NewRegistry()
	api := New("", reg)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/servers")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestStatsEndpointReportsPerServicePeerCounts(t *testing.T) {
	reg := serverdb.NewRegistry()
	api := New("", reg, fakePeerCounter{name: "Login", count: 3}, fakePeerCounter{name: "Matching", count: 1})
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 0, out.ServerCount)
	assert.Equal(t, 3, out.Peers["Login"])
	assert.Equal(t, 1, out.Peers["Matching"])
}
