package login

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesprockee/EchoRelay/internal/acl"
	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/session"
	"github.com/thesprockee/EchoRelay/internal/storage"
	"github.com/thesprockee/EchoRelay/internal/storage/fsstore"
	"github.com/thesprockee/EchoRelay/internal/symbol"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:0" }

type fakeConn struct {
	mu  bytes.Buffer
	dec *wire.Decoder
}

func newFakeConn() *fakeConn { return &fakeConn{dec: wire.NewDecoder()} }

func (c *fakeConn) Write(b []byte) (int, error) { return c.mu.Write(b) }
func (c *fakeConn) Close() error                { return nil }

func (c *fakeConn) drain(t *testing.T) wire.Packet {
	t.Helper()
	pkt, err := c.dec.Feed(c.mu.Bytes())
	require.NoError(t, err)
	c.mu.Reset()
	return pkt
}

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()

	store := fsstore.New(t.TempDir(), false)
	require.NoError(t, store.Open(context.Background()))

	aclList, err := acl.Load(context.Background(), store)
	require.NoError(t, err)

	syms := symbol.New()
	symbol.Seed(syms)
	wire.SeedMessageTypes(syms)

	sessions := session.NewCache()
	t.Cleanup(sessions.Close)

	svc := New(store, aclList, sessions, syms, time.Hour, time.Minute)
	return svc, store
}

func sendAndDecode(t *testing.T, svc *Service, p *peer.Peer, conn *fakeConn, name string, body interface{}) wire.Packet {
	t.Helper()
	raw, err := wire.EncodeJSON(svc.Symbols, name, body)
	require.NoError(t, err)
	svc.HandlePacket(p, wire.Packet{raw})
	return conn.drain(t)
}

func TestLoginSuccessIssuesSessionAndSendsSequence(t *testing.T) {
	svc, _ := newTestService(t)
	conn := newFakeConn()
	p := peer.New(fakeAddr{}, conn)

	pkt := sendAndDecode(t, svc, p, conn, wire.MsgLoginRequest, wire.LoginRequest{
		UserID:            "OVR-1",
		ClientSessionGUID: "client-guid",
	})

	require.Len(t, pkt, 3)
	name, ok := wire.DecodeJSON(svc.Symbols, pkt[0], nil)
	require.True(t, ok)
	assert.Equal(t, wire.MsgLoginSuccess, name)

	var success wire.LoginSuccess
	_, ok = wire.DecodeJSON(svc.Symbols, pkt[0], &success)
	require.True(t, ok)
	assert.Equal(t, "OVR-1", success.UserID)
	assert.NotEmpty(t, success.SessionGUID)

	name, ok = wire.DecodeJSON(svc.Symbols, pkt[2], nil)
	require.True(t, ok)
	assert.Equal(t, wire.MsgLoginSettings, name)

	id, ok := p.UserID()
	require.True(t, ok)
	assert.Equal(t, model.XPlatformId{Platform: model.PlatformOVR, AccountID: 1}, id)
}

func TestLoginRejectsMalformedUserID(t *testing.T) {
	svc, _ := newTestService(t)
	conn := newFakeConn()
	p := peer.New(fakeAddr{}, conn)

	pkt := sendAndDecode(t, svc, p, conn, wire.MsgLoginRequest, wire.LoginRequest{UserID: "garbage"})

	require.Len(t, pkt, 1)
	var failure wire.LoginFailure
	_, ok := wire.DecodeJSON(svc.Symbols, pkt[0], &failure)
	require.True(t, ok)
	assert.Equal(t, "bad_request", failure.Code)
}

func TestLoginDeniedByACLClosesPeer(t *testing.T) {
	svc, store := newTestService(t)
	require.NoError(t, svc.ACL.SetRules(context.Background(), []model.ACLRule{
		{Pattern: "OVR-", Action: model.ACLDeny},
	}))
	_ = store

	conn := newFakeConn()
	p := peer.New(fakeAddr{}, conn)

	pkt := sendAndDecode(t, svc, p, conn, wire.MsgLoginRequest, wire.LoginRequest{UserID: "OVR-99"})

	require.Len(t, pkt, 1)
	var failure wire.LoginFailure
	_, ok := wire.DecodeJSON(svc.Symbols, pkt[0], &failure)
	require.True(t, ok)
	assert.Equal(t, "forbidden", failure.Code)

	select {
	case <-p.Closed():
	case <-time.After(time.Second):
		t.Fatal("peer should be closed after an ACL-denied login")
	}
}

func TestLoggedInUserProfileRequestRequiresValidSession(t *testing.T) {
	svc, _ := newTestService(t)
	conn := newFakeConn()
	p := peer.New(fakeAddr{}, conn)

	loginPkt := sendAndDecode(t, svc, p, conn, wire.MsgLoginRequest, wire.LoginRequest{UserID: "OVR-7"})
	var success wire.LoginSuccess
	_, ok := wire.DecodeJSON(svc.Symbols, loginPkt[0], &success)
	require.True(t, ok)

	pkt := sendAndDecode(t, svc, p, conn, wire.MsgLoggedInUserProfileRequest, wire.LoggedInUserProfileRequest{
		UserID:      "OVR-7",
		SessionGUID: success.SessionGUID,
	})
	require.Len(t, pkt, 1)
	name, ok := wire.DecodeJSON(svc.Symbols, pkt[0], nil)
	require.True(t, ok)
	assert.Equal(t, wire.MsgLoggedInUserProfileSuccess, name)

	pkt = sendAndDecode(t, svc, p, conn, wire.MsgLoggedInUserProfileRequest, wire.LoggedInUserProfileRequest{
		UserID:      "OVR-7",
		SessionGUID: "wrong-guid",
	})
	require.Len(t, pkt, 1)
	var typedFailure wire.TypedFailure
	_, ok = wire.DecodeJSON(svc.Symbols, pkt[0], &typedFailure)
	require.True(t, ok)
	assert.Equal(t, 401, typedFailure.Status)
}

func TestUpdateProfileRejectsXPlatformIdMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	conn := newFakeConn()
	p := peer.New(fakeAddr{}, conn)

	loginPkt := sendAndDecode(t, svc, p, conn, wire.MsgLoginRequest, wire.LoginRequest{UserID: "OVR-8"})
	var success wire.LoginSuccess
	_, _ = wire.DecodeJSON(svc.Symbols, loginPkt[0], &success)

	mismatched, err := json.Marshal(model.ClientProfile{
		XPlatformId: model.XPlatformId{Platform: model.PlatformOVR, AccountID: 999},
		DisplayName: "Eve",
	})
	require.NoError(t, err)

	pkt := sendAndDecode(t, svc, p, conn, wire.MsgUpdateProfile, wire.UpdateProfileRequest{
		UserID:        "OVR-8",
		SessionGUID:   success.SessionGUID,
		ClientProfile: mismatched,
	})
	require.Len(t, pkt, 1)
	var typedFailure wire.TypedFailure
	_, ok := wire.DecodeJSON(svc.Symbols, pkt[0], &typedFailure)
	require.True(t, ok)
	assert.Equal(t, 400, typedFailure.Status)
}

func TestDisconnectShortensSessionTTLRatherThanDeletingIt(t *testing.T) {
	svc, _ := newTestService(t)
	conn := newFakeConn()
	p := peer.New(fakeAddr{}, conn)
	svc.AddPeer(p)

	loginPkt := sendAndDecode(t, svc, p, conn, wire.MsgLoginRequest, wire.LoginRequest{UserID: "OVR-55"})
	var success wire.LoginSuccess
	_, _ = wire.DecodeJSON(svc.Symbols, loginPkt[0], &success)

	svc.RemovePeer(p)

	userID := model.XPlatformId{Platform: model.PlatformOVR, AccountID: 55}
	assert.True(t, svc.Sessions.Validate(session.Token(success.SessionGUID), userID),
		"a disconnect must shorten the TTL, not invalidate the session outright")
}

var _ net.Addr = fakeAddr{}
