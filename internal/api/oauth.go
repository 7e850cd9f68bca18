package api

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/pkg/apierr"
)

// ListOAuthSessions handles GET /api/oauth/sessions.
func (d *Deps) ListOAuthSessions(ctx *fasthttp.RequestCtx) {
	sessions, err := d.Store.ListOAuthSessions(ctx)
	if err != nil {
		d.logAndWrite(ctx, "oauth", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, sessions)
}

// GetOAuthSession handles GET /api/oauth/sessions/:id.
func (d *Deps) GetOAuthSession(ctx *fasthttp.RequestCtx) {
	session, err := d.Store.GetOAuthSession(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "oauth", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, session)
}

type oauthRefreshRequest struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// RefreshOAuthSession handles POST /api/oauth/sessions/:id/refresh.
func (d *Deps) RefreshOAuthSession(ctx *fasthttp.RequestCtx) {
	var req oauthRefreshRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	session, err := d.Store.RefreshOAuthSession(ctx, pathParam(ctx, "id"), req.AccessToken, req.RefreshToken, req.ExpiresAt)
	if err != nil {
		d.logAndWrite(ctx, "oauth", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, session)
}

// RevokeOAuthSession handles DELETE /api/oauth/sessions/:id.
func (d *Deps) RevokeOAuthSession(ctx *fasthttp.RequestCtx) {
	ok, err := d.Store.RevokeOAuthSession(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "oauth", storeErr(err))
		return
	}
	if !ok {
		d.logAndWrite(ctx, "oauth", apierr.New(apierr.KindNotFound, "session_not_found", "oauth session not found"))
		return
	}
	apierr.WriteOK(ctx, map[string]bool{"revoked": true})
}

type oauthLinkRequest struct {
	ChannelID string `json:"channelId"`
}

// LinkOAuthSession handles POST /api/oauth/sessions/:id/link.
func (d *Deps) LinkOAuthSession(ctx *fasthttp.RequestCtx) {
	var req oauthLinkRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	if err := d.Store.LinkOAuthSessionToChannel(ctx, pathParam(ctx, "id"), req.ChannelID); err != nil {
		d.logAndWrite(ctx, "oauth", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, map[string]bool{"linked": true})
}

type oauthCreateRequest struct {
	ChannelID    string            `json:"channelId"`
	Provider     string            `json:"provider"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	Scopes       []string          `json:"scopes"`
	UserInfo     map[string]string `json:"userInfo"`
}

// CreateOAuthSession handles POST /api/oauth/sessions, completing an
// authorization-code exchange the admin UI performed against the provider
// directly; Routex stores the resulting tokens rather than brokering the
// OAuth handshake itself.
func (d *Deps) CreateOAuthSession(ctx *fasthttp.RequestCtx) {
	var req oauthCreateRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	session, err := d.Store.CreateOAuthSession(ctx, store.OAuthSession{
		ChannelID: req.ChannelID, Provider: req.Provider, AccessToken: req.AccessToken,
		RefreshToken: req.RefreshToken, ExpiresAt: req.ExpiresAt, Scopes: req.Scopes, UserInfo: req.UserInfo,
	})
	if err != nil {
		d.logAndWrite(ctx, "oauth", storeErr(err))
		return
	}
	apierr.WriteCreated(ctx, session)
}
