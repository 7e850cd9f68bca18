// Package apierr provides the structured error taxonomy and response
// envelope used by every handler in internal/api and internal/proxy (spec
// §7). Grounded on the teacher's apierr package: same Write/fasthttp shape,
// generalized from a fixed 5-type OpenAI-compatible set to the 12-kind
// taxonomy spec §7 defines, and wrapped in the {success, data|error} envelope
// spec §6 requires for the admin API.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// Kind is one of spec §7's twelve error kinds.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindAuthentication     Kind = "authentication"
	KindNotFound           Kind = "not_found"
	KindRateLimit          Kind = "rate_limit"
	KindCircuitBreaker     Kind = "circuit_breaker"
	KindNoAvailableChannel Kind = "no_available_channel"
	KindChannel            Kind = "channel"
	KindRouting            Kind = "routing"
	KindTransformer        Kind = "transformer"
	KindConfiguration      Kind = "configuration"
	KindStorage            Kind = "storage"
	KindInternal           Kind = "internal"
)

// statusFor maps a Kind to its HTTP status, per spec §7's table.
var statusFor = map[Kind]int{
	KindValidation:         fasthttp.StatusBadRequest,
	KindAuthentication:     fasthttp.StatusUnauthorized,
	KindNotFound:           fasthttp.StatusNotFound,
	KindRateLimit:          fasthttp.StatusTooManyRequests,
	KindCircuitBreaker:     fasthttp.StatusServiceUnavailable,
	KindNoAvailableChannel: fasthttp.StatusServiceUnavailable,
	KindChannel:            fasthttp.StatusInternalServerError,
	KindRouting:            fasthttp.StatusInternalServerError,
	KindTransformer:        fasthttp.StatusInternalServerError,
	KindConfiguration:      fasthttp.StatusInternalServerError,
	KindStorage:            fasthttp.StatusInternalServerError,
	KindInternal:           fasthttp.StatusInternalServerError,
}

// Error is a Kind-carrying error with a stable code and optional details,
// matching the {type, code, message, details?} error body of spec §6.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string { return e.Message }

// New constructs an *Error. Code defaults to the Kind string when empty.
func New(kind Kind, code, message string) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

// WithDetails attaches structured details and returns the same *Error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Status returns the HTTP status for e's Kind.
func (e *Error) Status() int {
	if s, ok := statusFor[e.Kind]; ok {
		return s
	}
	return fasthttp.StatusInternalServerError
}

type errorBody struct {
	Type    string         `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

// WriteOK writes {success:true, data: v}.
func WriteOK(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	writeEnvelope(ctx, envelope{Success: true, Data: v})
}

// WriteCreated writes {success:true, data: v} with a 201 status.
func WriteCreated(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetStatusCode(fasthttp.StatusCreated)
	writeEnvelope(ctx, envelope{Success: true, Data: v})
}

// WriteErr writes e's Kind/Code/Message as {success:false, error:{...}} with
// e's mapped HTTP status. In production (prod=true) an Internal error's
// message is replaced with a generic one, per spec §7's "message hidden in
// production" propagation policy.
func WriteErr(ctx *fasthttp.RequestCtx, e *Error, prod bool) {
	msg := e.Message
	if prod && e.Kind == KindInternal {
		msg = "internal server error"
	}
	ctx.SetStatusCode(e.Status())
	writeEnvelope(ctx, envelope{Success: false, Error: &errorBody{
		Type:    string(e.Kind),
		Code:    e.Code,
		Message: msg,
		Details: e.Details,
	}})
}

// WriteFromErr classifies a plain error as KindInternal and writes it. Use
// WriteErr directly when the caller already has a typed *Error.
func WriteFromErr(ctx *fasthttp.RequestCtx, err error, prod bool) {
	WriteErr(ctx, New(KindInternal, "internal_error", err.Error()), prod)
}

func writeEnvelope(ctx *fasthttp.RequestCtx, env envelope) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(env)
	ctx.SetBody(body)
}
