package api

import (
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/pkg/apierr"
)

var validLocales = map[string]bool{"en": true, "zh-CN": true}

// GetLocale handles GET /api/i18n/locale.
func (d *Deps) GetLocale(ctx *fasthttp.RequestCtx) {
	apierr.WriteOK(ctx, map[string]string{"locale": d.locale})
}

type localeRequest struct {
	Locale string `json:"locale"`
}

// SetLocale handles PUT /api/i18n/locale.
func (d *Deps) SetLocale(ctx *fasthttp.RequestCtx) {
	var req localeRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	if !validLocales[req.Locale] {
		d.logAndWrite(ctx, "i18n", apierr.New(apierr.KindValidation, "invalid_locale", "unsupported locale: "+req.Locale))
		return
	}
	d.locale = req.Locale
	apierr.WriteOK(ctx, map[string]string{"locale": d.locale})
}
