// Package store implements Routex's embedded persistence layer: channels,
// routing rules, tee destinations, OAuth sessions and request logs.
package store

import (
	"errors"
	"time"
)

// ChannelStatus is the lifecycle state of a Channel.
type ChannelStatus string

const (
	ChannelEnabled     ChannelStatus = "enabled"
	ChannelDisabled    ChannelStatus = "disabled"
	ChannelCircuitOpen ChannelStatus = "circuit_open"
	ChannelRateLimited ChannelStatus = "rate_limited"
)

// TransformerRef is one (name, options) pair in a channel's transformer chain.
type TransformerRef struct {
	Name    string         `json:"name"`
	Options map[string]any `json:"options,omitempty"`
}

// Channel is a single upstream credential plus routing hints.
type Channel struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Type                string           `json:"type"`
	BaseURL             string           `json:"baseUrl,omitempty"`
	APIKey              string           `json:"apiKey,omitempty"`
	Models              []string         `json:"models"`
	Priority            int              `json:"priority"`
	Weight              float64          `json:"weight"`
	Status              ChannelStatus    `json:"status"`
	Transformers        []TransformerRef `json:"transformers,omitempty"`
	RequestCount        int64            `json:"requestCount"`
	SuccessCount        int64            `json:"successCount"`
	FailureCount        int64            `json:"failureCount"`
	ConsecutiveFailures int              `json:"consecutiveFailures"`
	LastFailureTime     *time.Time       `json:"lastFailureTime,omitempty"`
	CircuitBreakerUntil *time.Time       `json:"circuitBreakerUntil,omitempty"`
	RateLimitedUntil    *time.Time       `json:"rateLimitedUntil,omitempty"`
	LastUsedAt          *time.Time       `json:"lastUsedAt,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// Redacted returns a copy of the channel with APIKey masked, for logs and exports.
func (c Channel) Redacted() Channel {
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	return c
}

// RoutingRule is a predicate-to-destination mapping evaluated by the SmartRouter.
type RoutingRule struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Condition     RuleCondition   `json:"condition"`
	TargetChannel string          `json:"targetChannel"`
	TargetModel   string          `json:"targetModel,omitempty"`
	Priority      int             `json:"priority"`
	Enabled       bool            `json:"enabled"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// RuleCondition is the predicate grammar described in spec §4.5. All set
// fields are conjunctive.
type RuleCondition struct {
	TokenThreshold    int      `json:"tokenThreshold,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	UserPattern       string   `json:"userPattern,omitempty"`
	ModelPattern      string   `json:"modelPattern,omitempty"`
	HasTools          *bool    `json:"hasTools,omitempty"`
	HasImages         *bool    `json:"hasImages,omitempty"`
	ContentCategory   string   `json:"contentCategory,omitempty"`
	ComplexityLevel   string   `json:"complexityLevel,omitempty"`
	HasCode           *bool    `json:"hasCode,omitempty"`
	ProgrammingLang   string   `json:"programmingLanguage,omitempty"`
	Intent            string   `json:"intent,omitempty"`
	MinWordCount      int      `json:"minWordCount,omitempty"`
	MaxWordCount      int      `json:"maxWordCount,omitempty"`
	CustomFunction    string   `json:"customFunction,omitempty"`
}

// IsEmpty reports whether no condition field is set, which violates the
// RoutingRule invariant that at least one must be.
func (c RuleCondition) IsEmpty() bool {
	return c.TokenThreshold == 0 &&
		len(c.Keywords) == 0 &&
		c.UserPattern == "" &&
		c.ModelPattern == "" &&
		c.HasTools == nil &&
		c.HasImages == nil &&
		c.ContentCategory == "" &&
		c.ComplexityLevel == "" &&
		c.HasCode == nil &&
		c.ProgrammingLang == "" &&
		c.Intent == "" &&
		c.MinWordCount == 0 &&
		c.MaxWordCount == 0 &&
		c.CustomFunction == ""
}

// TeeFilter narrows which forwarded requests a TeeDestination observes.
type TeeFilter struct {
	StatusCodes []int    `json:"statusCodes,omitempty"`
	Channels    []string `json:"channels,omitempty"`
	Models      []string `json:"models,omitempty"`
	MinLatency  int      `json:"minLatencyMs,omitempty"`
	MaxLatency  int      `json:"maxLatencyMs,omitempty"`
	SuccessOnly bool     `json:"successOnly,omitempty"`
	FailureOnly bool     `json:"failureOnly,omitempty"`
}

// TeeDestination is an observer sink receiving a copy of request/response pairs.
type TeeDestination struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          string            `json:"type"` // webhook | file | custom
	Enabled       bool              `json:"enabled"`
	URL           string            `json:"url,omitempty"`
	Method        string            `json:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	FilePath      string            `json:"filePath,omitempty"`
	CustomHandler string            `json:"customHandler,omitempty"`
	Filter        TeeFilter         `json:"filter,omitempty"`
	Retries       int               `json:"retries"`
	TimeoutMs     int               `json:"timeoutMs"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// RequestLog is one row per forwarded request, written via the batched writer.
type RequestLog struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channelId"`
	Model        string    `json:"model"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	StatusCode   int       `json:"statusCode"`
	LatencyMs    int       `json:"latency"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	CachedTokens int       `json:"cachedTokens"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	TraceID      string    `json:"traceId,omitempty"`
}

// Cost computes the fixed-constant USD estimate spec §4.1 pins to the core.
func (r RequestLog) Cost() float64 {
	return float64(r.InputTokens)/1e6*3.0 +
		float64(r.OutputTokens)/1e6*15.0 +
		float64(r.CachedTokens)/1e6*0.3
}

// OAuthSession holds access/refresh tokens bound to a channel.
type OAuthSession struct {
	ID           string            `json:"id"`
	ChannelID    string            `json:"channelId,omitempty"`
	Provider     string            `json:"provider"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	Scopes       []string          `json:"scopes,omitempty"`
	UserInfo     map[string]string `json:"userInfo,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// RequestQuery filters the getRequestsFiltered operation.
type RequestQuery struct {
	Status    string
	ChannelID string
	Model     string
	Q         string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// RequestPage is the {rows, total} result of a filtered request query, plus
// the effective limit/offset actually applied (see DESIGN.md Open Question b).
type RequestPage struct {
	Rows           []RequestLog
	Total          int
	EffectiveLimit int
	EffectiveOffset int
}

// Analytics aggregates request-log statistics.
type Analytics struct {
	Total          int64   `json:"total"`
	Success        int64   `json:"success"`
	Failure        int64   `json:"failure"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	InputTokens    int64   `json:"inputTokens"`
	OutputTokens   int64   `json:"outputTokens"`
	CachedTokens   int64   `json:"cachedTokens"`
	EstimatedCost  float64 `json:"estimatedCost"`
}

// Error kinds returned by Store methods.
var (
	ErrNotFound   = errors.New("store: not found")
	ErrValidation = errors.New("store: validation")
	ErrConflict   = errors.New("store: conflict")
	ErrStorage    = errors.New("store: storage")
)
