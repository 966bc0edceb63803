// Package command binds the numbered wire operations to the gate services.
package command

import (
	"context"
	"encoding/json"

	"github.com/coralstack/coraldb/internal/gate/event"
	"github.com/coralstack/coraldb/internal/gate/service"
	"github.com/coralstack/coraldb/pkg/duplex"
)

// Command numbers. The assignment is part of the wire contract and never
// changes.
const (
	CmdAuthenticate uint8 = 0
	CmdRefresh      uint8 = 1
	CmdQuery        uint8 = 2
	CmdCreateUser   uint8 = 3
	CmdRemoveUser   uint8 = 4
)

// Router owns the command handlers and their wiring onto the transport.
type Router struct {
	Auth    *service.AuthService
	Queries *service.QueryService
	Tokens  *service.TokenService
	Bus     *event.Bus

	// AuthLimit throttles the authenticate command per peer host.
	AuthLimit duplex.RateLimitConfig
}

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type userPayload struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	AccessToken string `json:"accessToken"`
}

type queryPayload struct {
	service.QueryPayload

	AccessToken string `json:"accessToken"`
}

type successPayload struct {
	Success bool `json:"success"`
}

// Register installs all five handlers on the server.
func (r *Router) Register(srv *duplex.CommandServer) {
	srv.Handle(CmdAuthenticate, r.authenticate, duplex.RateLimit(r.AuthLimit))
	srv.Handle(CmdRefresh, r.refresh)
	srv.Handle(CmdQuery, r.query)
	srv.Handle(CmdCreateUser, r.createUser)
	srv.Handle(CmdRemoveUser, r.removeUser)
}

// publish emits the handler's lifecycle event. Fire-and-forget: observers
// never affect the response.
func (r *Router) publish(name string, conn *duplex.Conn, payload json.RawMessage) {
	if r.Bus == nil {
		return
	}
	r.Bus.Publish(event.Event{
		Name:       name,
		Payload:    payload,
		ConnID:     conn.ID,
		RemoteAddr: conn.RemoteAddr,
	})
}

func (r *Router) authenticate(ctx context.Context, conn *duplex.Conn, raw json.RawMessage) (any, error) {
	r.publish("auth", conn, raw)

	var p credentialsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, service.ErrInvalidCredentials
	}
	return r.Auth.Authenticate(ctx, p.Username, p.Password)
}

func (r *Router) refresh(ctx context.Context, conn *duplex.Conn, raw json.RawMessage) (any, error) {
	r.publish("refresh", conn, raw)

	var p refreshPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, service.ErrMissingTokenPair
	}
	return r.Auth.Refresh(ctx, p.AccessToken, p.RefreshToken)
}

func (r *Router) query(ctx context.Context, conn *duplex.Conn, raw json.RawMessage) (any, error) {
	r.publish("query", conn, raw)

	var p queryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, service.ErrMissingPayload
	}
	if v := r.Tokens.ValidateAccessToken(p.AccessToken); !v.Valid {
		return nil, service.ErrInvalidAccessToken
	}
	return r.Queries.Query(ctx, &p.QueryPayload)
}

func (r *Router) createUser(ctx context.Context, conn *duplex.Conn, raw json.RawMessage) (any, error) {
	r.publish("createUser", conn, raw)

	p, err := r.checkUserPayload(raw)
	if err != nil {
		return nil, err
	}
	if err := r.Auth.Creds.CreateUser(ctx, p.Username, p.Password); err != nil {
		return nil, err
	}
	return successPayload{Success: true}, nil
}

func (r *Router) removeUser(ctx context.Context, conn *duplex.Conn, raw json.RawMessage) (any, error) {
	r.publish("removeUser", conn, raw)

	p, err := r.checkUserPayload(raw)
	if err != nil {
		return nil, err
	}
	if err := r.Auth.Creds.RemoveUser(ctx, p.Username); err != nil {
		return nil, err
	}
	return successPayload{Success: true}, nil
}

// checkUserPayload validates the shared shape of the user-management
// commands: both credential fields present, then a live access token.
func (r *Router) checkUserPayload(raw json.RawMessage) (userPayload, error) {
	var p userPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, service.ErrInvalidCredentials
	}
	if p.Username == "" || p.Password == "" {
		return p, service.ErrInvalidCredentials
	}
	if v := r.Tokens.ValidateAccessToken(p.AccessToken); !v.Valid {
		return p, service.ErrInvalidAccessToken
	}
	return p, nil
}
