// Package matching implements the matching engine and the Matching service
// for client session requests: candidate filtering, ranking, allocation
// with CAS retry, constraint-relaxation fallback, and commit.
package matching

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/thesprockee/EchoRelay/internal/config"
	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/serverdb"
)

// Request is the engine's kind-agnostic view of a client's matching
// request; RequestKind picks which constraints and allocation path apply.
type RequestKind int

const (
	KindCreate RequestKind = iota
	KindFind
	KindJoin
)

type Request struct {
	Kind           RequestKind
	LevelSymbol    int64
	GameModeSymbol int64
	RegionSymbol   int64
	HasRegion      bool
	VersionLock    int64
	SessionGUID    string // join only
	ClientPingMs   int
}

// NewSessionGUID mints a fresh random 128-bit session identifier.
func NewSessionGUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("matching: generate session_guid: %w", err)
	}
	return id.String(), nil
}

// Engine resolves Requests against a Registry under a configured ranking
// policy.
type Engine struct {
	Registry            *serverdb.Registry
	Policy              config.RankingPolicy
	ForceIntoAnySession bool
}

// NewEngine returns an Engine bound to reg.
func NewEngine(reg *serverdb.Registry, policy config.RankingPolicy, forceIntoAnySession bool) *Engine {
	return &Engine{Registry: reg, Policy: policy, ForceIntoAnySession: forceIntoAnySession}
}

type constraints struct {
	levelSymbol    int64
	gameModeSymbol int64
	regionSymbol   int64
	hasRegion      bool
	hasLevel       bool
	hasMode        bool
}

func constraintsFromRequest(req Request) constraints {
	return constraints{
		levelSymbol:    req.LevelSymbol,
		gameModeSymbol: req.GameModeSymbol,
		regionSymbol:   req.RegionSymbol,
		hasRegion:      req.HasRegion,
		hasLevel:       true,
		hasMode:        true,
	}
}

// filter returns every registered server matching c and the request kind's
// state requirement: idle for create, session-active for find/join.
func (e *Engine) filter(req Request, c constraints) []model.RegisteredGameServer {
	var out []model.RegisteredGameServer
	for _, srv := range e.Registry.Snapshot() {
		if !srv.IsPublic {
			continue
		}
		if c.hasRegion && srv.RegionSymbol != c.regionSymbol {
			continue
		}
		if srv.VersionLock != req.VersionLock {
			continue
		}

		switch req.Kind {
		case KindCreate:
			if srv.State != model.StateIdle {
				continue
			}
		case KindJoin:
			if srv.State != model.StateSessionActive || srv.SessionGUID != req.SessionGUID {
				continue
			}
			if srv.ParticipantCount >= srv.Capacity {
				continue
			}
		case KindFind:
			if srv.State != model.StateSessionActive {
				continue
			}
			if c.hasLevel && srv.LevelSymbol != c.levelSymbol {
				continue
			}
			if c.hasMode && srv.GameModeSymbol != c.gameModeSymbol {
				continue
			}
			if srv.ParticipantCount >= srv.Capacity {
				continue
			}
		}

		out = append(out, srv)
	}
	return out
}

// rank orders candidates best-first under the engine's policy.
func (e *Engine) rank(candidates []model.RegisteredGameServer, clientPingMs int) {
	switch e.Policy {
	case config.RankingLowPingFirst:
		sort.SliceStable(candidates, func(i, j int) bool {
			pi, pj := estimatedPing(candidates[i], clientPingMs), estimatedPing(candidates[j], clientPingMs)
			if pi != pj {
				return pi < pj
			}
			return candidates[i].ParticipantCount > candidates[j].ParticipantCount
		})
	default: // RankingPopulationFirst
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].ParticipantCount != candidates[j].ParticipantCount {
				return candidates[i].ParticipantCount > candidates[j].ParticipantCount
			}
			return estimatedPing(candidates[i], clientPingMs) < estimatedPing(candidates[j], clientPingMs)
		})
	}
}

// estimatedPing approximates client->server latency from the last recorded
// probe RTT; the client-reported ping in the request is used as a
// tie-breaking proxy when no probe data exists yet.
func estimatedPing(srv model.RegisteredGameServer, clientPingMs int) int64 {
	if srv.LastPingRTTMillis > 0 {
		return srv.LastPingRTTMillis
	}
	return int64(clientPingMs)
}

// Result is the outcome of Resolve: either a chosen server (with a freshly
// minted session_guid for create requests) or a failure reason.
type Result struct {
	Server      model.RegisteredGameServer
	SessionGUID string
	Matched     bool
	Reason      string
}

// Resolve runs filter -> rank -> allocate -> fallback for req.
func (e *Engine) Resolve(req Request) (Result, error) {
	c := constraintsFromRequest(req)

	if res, ok := e.tryAllocate(req, c); ok {
		return res, nil
	}

	// Fallback: relax constraints one at a time. Join requests name a
	// specific session_guid, so there is nothing to relax for them.
	if req.Kind != KindJoin && e.ForceIntoAnySession {
		relaxations := []func(*constraints){
			func(c *constraints) { c.hasLevel = false },
			func(c *constraints) { c.hasMode = false },
			func(c *constraints) { c.hasRegion = false },
		}
		relaxed := c
		for _, relax := range relaxations {
			relax(&relaxed)
			if res, ok := e.tryAllocate(req, relaxed); ok {
				return res, nil
			}
		}
	}

	return Result{Matched: false, Reason: "no servers"}, nil
}

func (e *Engine) tryAllocate(req Request, c constraints) (Result, bool) {
	candidates := e.filter(req, c)
	if len(candidates) == 0 {
		return Result{}, false
	}
	e.rank(candidates, req.ClientPingMs)

	switch req.Kind {
	case KindCreate:
		for _, cand := range candidates {
			guid, err := NewSessionGUID()
			if err != nil {
				continue
			}
			if e.Registry.LockSession(cand.ServerID, guid, req.LevelSymbol, req.GameModeSymbol) {
				locked, _ := e.Registry.Get(cand.ServerID)
				return Result{Server: locked, SessionGUID: guid, Matched: true}, true
			}
			// CAS lost the race; try the next-ranked candidate.
		}
		return Result{}, false

	default: // find/join: no CAS needed, just attach
		best := candidates[0]
		return Result{Server: best, SessionGUID: best.SessionGUID, Matched: true}, true
	}
}
