// Package login implements the Login service: authentication,
// profile fetch/update, and the login settings sent on a successful
// login. Channel info and documents are sent only in reply to a client's
// request for them.
package login

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/thesprockee/EchoRelay/internal/acl"
	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/service"
	"github.com/thesprockee/EchoRelay/internal/services/document"
	"github.com/thesprockee/EchoRelay/internal/session"
	"github.com/thesprockee/EchoRelay/internal/storage"
	"github.com/thesprockee/EchoRelay/internal/symbol"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

const sessionDataKey = "Login"

// Service is the /login endpoint.
type Service struct {
	*service.Base

	Store    storage.Store
	ACL      *acl.List
	Sessions *session.Cache
	Symbols  *symbol.Cache

	SessionTTL             time.Duration
	SessionDisconnectedTTL time.Duration
}

// New wires a Login Service with its collaborators.
func New(store storage.Store, aclList *acl.List, sessions *session.Cache, symbols *symbol.Cache, sessionTTL, disconnectedTTL time.Duration) *Service {
	s := &Service{
		Base:                   service.NewBase("Login", "/login"),
		Store:                  store,
		ACL:                    aclList,
		Sessions:               sessions,
		Symbols:                symbols,
		SessionTTL:             sessionTTL,
		SessionDisconnectedTTL: disconnectedTTL,
	}

	s.OnPeerDisconnected.Subscribe(func(p *peer.Peer) {
		// The session entry is not deleted immediately; its TTL is
		// shortened so a quick reconnect can reuse it.
		if raw, ok := p.SessionData(sessionDataKey); ok {
			if tok, ok := raw.(session.Token); ok {
				s.Sessions.ShortenTTL(tok, s.SessionDisconnectedTTL)
			}
		}
	})

	return s
}

// HandlePacket dispatches every message in pkt to its typed handler.
func (s *Service) HandlePacket(p *peer.Peer, pkt wire.Packet) {
	ctx := context.Background()

	for _, m := range pkt {
		s.Base.NotifyPacketReceived(p, wire.Packet{m})

		switch name, _ := wire.DecodeJSON(s.Symbols, m, nil); name {
		case wire.MsgLoginRequest:
			var req wire.LoginRequest
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleLogin(ctx, p, req)
			}
		case wire.MsgLoggedInUserProfileRequest:
			var req wire.LoggedInUserProfileRequest
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleLoggedInUserProfileRequest(ctx, p, req)
			}
		case wire.MsgOtherUserProfileRequest:
			var req wire.OtherUserProfileRequest
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleOtherUserProfileRequest(ctx, p, req)
			}
		case wire.MsgUpdateProfile:
			var req wire.UpdateProfileRequest
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleUpdateProfile(ctx, p, req)
			}
		case wire.MsgUserServerProfileUpdateRequest:
			var req wire.UserServerProfileUpdateRequest
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleUserServerProfileUpdateRequest(ctx, p, req)
			}
		case wire.MsgChannelInfoRequest:
			s.handleChannelInfoRequest(ctx, p)
		case wire.MsgDocumentRequestv2:
			var req wire.DocumentRequestv2
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleDocumentRequest(ctx, p, req)
			}
		default:
			log.Printf("login: unhandled message type %d", m.Type)
		}
	}
}

func (s *Service) handleLogin(ctx context.Context, p *peer.Peer, req wire.LoginRequest) {
	// (1) invalidate any prior session stored on this peer.
	if raw, ok := p.SessionData(sessionDataKey); ok {
		if tok, ok := raw.(session.Token); ok {
			s.Sessions.Invalidate(tok)
		}
		p.ClearSessionData(sessionDataKey)
	}

	userID, err := model.ParseXPlatformId(req.UserID)
	if err != nil {
		s.sendLoginFailure(p, "bad_request", err.Error())
		return
	}

	// (2) verify against the access control list.
	if !s.ACL.Check(userID) {
		s.sendLoginFailure(p, "forbidden", "user is not permitted to connect")
		_ = p.Close()
		return
	}

	acc, err := storage.GetOrCreateAccount(ctx, s.Store, userID, userID.String())
	if err != nil {
		s.sendLoginFailure(p, "internal", "storage error")
		return
	}

	// (3)+(4) fresh session_guid, stored with a long TTL.
	tok, err := s.Sessions.Issue(userID, s.SessionTTL)
	if err != nil {
		s.sendLoginFailure(p, "internal", "could not issue session")
		return
	}

	// (5) peer session slot + authentication.
	p.SetSessionData(sessionDataKey, tok)
	firstAuth := p.UpdateUserAuthentication(userID, acc.Client.DisplayName)
	if firstAuth {
		s.Base.NotifyAuthenticated(p)
	}

	// (6) LoginSuccess, TcpConnectionUnrequireEvent, LoginSettings.
	success, err := wire.EncodeJSON(s.Symbols, wire.MsgLoginSuccess, wire.LoginSuccess{
		UserID:      userID.String(),
		SessionGUID: string(tok),
	})
	if err != nil {
		log.Printf("login: encode success: %v", err)
		return
	}

	unrequire, err := wire.EncodeJSON(s.Symbols, wire.MsgTcpConnectionUnrequireEvent, struct{}{})
	if err != nil {
		log.Printf("login: encode unrequire event: %v", err)
		return
	}

	settingsRaw, err := document.LoginSettings(ctx, s.Store)
	if err != nil {
		log.Printf("login: load login settings: %v", err)
		settingsRaw = json.RawMessage(`{}`)
	}
	settings, err := wire.EncodeJSON(s.Symbols, wire.MsgLoginSettings, wire.LoginSettingsMsg{Settings: settingsRaw})
	if err != nil {
		log.Printf("login: encode settings: %v", err)
		return
	}

	if err := p.Send(success, unrequire, settings); err != nil {
		log.Printf("login: send login sequence: %v", err)
		return
	}
	s.Base.NotifyPacketSent(p, wire.Packet{success, unrequire, settings})
}

func (s *Service) sendLoginFailure(p *peer.Peer, code, message string) {
	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgLoginFailure, wire.LoginFailure{Code: code, Message: message})
	if err != nil {
		log.Printf("login: encode failure: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) validateSession(p *peer.Peer, userID model.XPlatformId, sessionGUID string) bool {
	raw, ok := p.SessionData(sessionDataKey)
	if !ok {
		return false
	}
	tok, ok := raw.(session.Token)
	if !ok || string(tok) != sessionGUID {
		return false
	}
	return s.Sessions.Validate(tok, userID)
}

func (s *Service) handleLoggedInUserProfileRequest(ctx context.Context, p *peer.Peer, req wire.LoggedInUserProfileRequest) {
	userID, err := model.ParseXPlatformId(req.UserID)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgLoggedInUserProfileFailure, req.UserID, 400, "bad request")
		return
	}

	if !s.validateSession(p, userID, req.SessionGUID) {
		s.sendProfileFailure(p, wire.MsgLoggedInUserProfileFailure, req.UserID, 401, "Invalid Session")
		return
	}

	acc, ok, err := storage.GetAccount(ctx, s.Store, userID)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgLoggedInUserProfileFailure, req.UserID, 500, "storage error")
		return
	}
	if !ok {
		s.sendProfileFailure(p, wire.MsgLoggedInUserProfileFailure, req.UserID, 404, "not found")
		return
	}

	profileJSON, err := json.Marshal(acc)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgLoggedInUserProfileFailure, req.UserID, 500, "encode error")
		return
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgLoggedInUserProfileSuccess, wire.LoggedInUserProfileSuccess{
		UserID:  req.UserID,
		Profile: profileJSON,
	})
	if err != nil {
		log.Printf("login: encode profile success: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) sendProfileFailure(p *peer.Peer, msgName, userID string, status int, message string) {
	msg, err := wire.EncodeJSON(s.Symbols, msgName, wire.TypedFailure{UserID: userID, Status: status, Message: message})
	if err != nil {
		log.Printf("login: encode typed failure: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) handleOtherUserProfileRequest(ctx context.Context, p *peer.Peer, req wire.OtherUserProfileRequest) {
	userID, err := model.ParseXPlatformId(req.UserID)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgOtherUserProfileFailure, req.UserID, 400, "bad request")
		return
	}

	acc, ok, err := storage.GetAccount(ctx, s.Store, userID)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgOtherUserProfileFailure, req.UserID, 500, "storage error")
		return
	}
	if !ok {
		s.sendProfileFailure(p, wire.MsgOtherUserProfileFailure, req.UserID, 404, "not found")
		return
	}

	serverProfileJSON, err := json.Marshal(acc.Server)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgOtherUserProfileFailure, req.UserID, 500, "encode error")
		return
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgOtherUserProfileSuccess, wire.OtherUserProfileSuccess{
		UserID:  req.UserID,
		Profile: serverProfileJSON,
	})
	if err != nil {
		log.Printf("login: encode other profile success: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) handleUpdateProfile(ctx context.Context, p *peer.Peer, req wire.UpdateProfileRequest) {
	userID, err := model.ParseXPlatformId(req.UserID)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgUpdateProfileFailure, req.UserID, 400, "bad request")
		return
	}

	if !s.validateSession(p, userID, req.SessionGUID) {
		s.sendProfileFailure(p, wire.MsgUpdateProfileFailure, req.UserID, 401, "Invalid Session")
		return
	}

	var client model.ClientProfile
	if err := json.Unmarshal(req.ClientProfile, &client); err != nil {
		s.sendProfileFailure(p, wire.MsgUpdateProfileFailure, req.UserID, 400, "malformed client_profile")
		return
	}
	if client.XPlatformId != userID {
		s.sendProfileFailure(p, wire.MsgUpdateProfileFailure, req.UserID, 400, "client_profile.xplatform_id mismatch")
		return
	}

	acc, ok, err := storage.GetAccount(ctx, s.Store, userID)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgUpdateProfileFailure, req.UserID, 500, "storage error")
		return
	}
	if !ok {
		s.sendProfileFailure(p, wire.MsgUpdateProfileFailure, req.UserID, 404, "not found")
		return
	}

	acc.Client = client
	now := time.Now().Unix()
	acc.Server.UpdateTime = now
	acc.Server.ModifyTime = now

	if err := storage.PutAccount(ctx, s.Store, acc); err != nil {
		s.sendProfileFailure(p, wire.MsgUpdateProfileFailure, req.UserID, 500, "storage error")
		return
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgUpdateProfileSuccess, wire.UpdateProfileSuccess{UserID: req.UserID})
	if err != nil {
		log.Printf("login: encode update success: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) handleUserServerProfileUpdateRequest(ctx context.Context, p *peer.Peer, req wire.UserServerProfileUpdateRequest) {
	userID, err := model.ParseXPlatformId(req.UserID)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgUserServerProfileUpdateFailure, req.UserID, 400, "bad request")
		return
	}

	acc, ok, err := storage.GetAccount(ctx, s.Store, userID)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgUserServerProfileUpdateFailure, req.UserID, 500, "storage error")
		return
	}
	if !ok {
		s.sendProfileFailure(p, wire.MsgUserServerProfileUpdateFailure, req.UserID, 404, "not found")
		return
	}

	merged, err := model.MergeServerProfileJSON(acc.Server, req.Delta)
	if err != nil {
		s.sendProfileFailure(p, wire.MsgUserServerProfileUpdateFailure, req.UserID, 400, "malformed delta")
		return
	}
	if merged.XPlatformId != userID {
		s.sendProfileFailure(p, wire.MsgUserServerProfileUpdateFailure, req.UserID, 400, "merged xplatform_id mismatch")
		return
	}

	acc.Server = merged
	if err := storage.PutAccount(ctx, s.Store, acc); err != nil {
		s.sendProfileFailure(p, wire.MsgUserServerProfileUpdateFailure, req.UserID, 500, "storage error")
		return
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgUserServerProfileUpdateSuccess, wire.UserServerProfileUpdateSuccess{UserID: req.UserID})
	if err != nil {
		log.Printf("login: encode server profile update success: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) handleChannelInfoRequest(ctx context.Context, p *peer.Peer) {
	channels, err := document.Channels(ctx, s.Store, s.Symbols)
	if err != nil {
		log.Printf("login: load channels: %v", err)
		return
	}

	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		log.Printf("login: encode channels: %v", err)
		return
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgChannelInfoResponse, wire.ChannelInfoResponse{Channels: channelsJSON})
	if err != nil {
		log.Printf("login: encode channel info response: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) handleDocumentRequest(ctx context.Context, p *peer.Peer, req wire.DocumentRequestv2) {
	doc, err := document.Lookup(ctx, s.Store, s.Symbols, req.Type, req.Language)
	if err != nil {
		msg, encErr := wire.EncodeJSON(s.Symbols, wire.MsgDocumentFailure, wire.DocumentFailure{
			Type: req.Type, Language: req.Language, Message: err.Error(),
		})
		if encErr == nil {
			_ = p.Send(msg)
			s.Base.NotifyPacketSent(p, wire.Packet{msg})
		}
		return
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgDocumentSuccess, wire.DocumentSuccess{
		Type: req.Type, Language: req.Language, Document: doc,
	})
	if err != nil {
		log.Printf("login: encode document success: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}
