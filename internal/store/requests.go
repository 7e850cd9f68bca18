package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const requestColumns = `id, channel_id, model, method, path, status_code, latency_ms, input_tokens, output_tokens, cached_tokens, success, error, timestamp, trace_id`

func scanRequestLog(row scanner) (RequestLog, error) {
	var r RequestLog
	var errStr, traceID *string
	var ts int64
	var success int
	if err := row.Scan(&r.ID, &r.ChannelID, &r.Model, &r.Method, &r.Path, &r.StatusCode, &r.LatencyMs,
		&r.InputTokens, &r.OutputTokens, &r.CachedTokens, &success, &errStr, &ts, &traceID); err != nil {
		return RequestLog{}, err
	}
	r.Success = success != 0
	if errStr != nil {
		r.Error = *errStr
	}
	if traceID != nil {
		r.TraceID = *traceID
	}
	r.Timestamp = time.UnixMilli(ts)
	return r, nil
}

// GetRequests returns the most recent request logs, newest first.
func (s *Store) GetRequests(ctx context.Context, limit, offset int) ([]RequestLog, error) {
	page, err := s.GetRequestsFiltered(ctx, RequestQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// GetRequestsByChannel returns the most recent request logs for one channel.
func (s *Store) GetRequestsByChannel(ctx context.Context, channelID string, limit int) ([]RequestLog, error) {
	page, err := s.GetRequestsFiltered(ctx, RequestQuery{ChannelID: channelID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// GetRequestsFiltered runs a filtered, paginated request-log query.
//
// limit/offset are clamped server-side (limit to [1,1000], offset to >= 0);
// RequestPage.EffectiveLimit/EffectiveOffset report what was actually applied
// rather than the caller's requested values — see DESIGN.md Open Question (b).
func (s *Store) GetRequestsFiltered(ctx context.Context, q RequestQuery) (RequestPage, error) {
	if q.Since != nil && q.Until != nil && !q.Since.Before(*q.Until) {
		return RequestPage{}, fmt.Errorf("%w: since must be before until", ErrValidation)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []any
	if q.Status == "success" {
		where = append(where, "success = 1")
	} else if q.Status == "failure" {
		where = append(where, "success = 0")
	}
	if q.ChannelID != "" {
		where = append(where, "channel_id = ?")
		args = append(args, q.ChannelID)
	}
	if q.Model != "" {
		where = append(where, "model = ?")
		args = append(args, q.Model)
	}
	if q.Q != "" {
		where = append(where, "(path LIKE ? OR model LIKE ? OR error LIKE ?)")
		like := "%" + q.Q + "%"
		args = append(args, like, like, like)
	}
	if q.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if q.Until != nil {
		where = append(where, "timestamp < ?")
		args = append(args, q.Until.UnixMilli())
	}

	clause := "1=1"
	if len(where) > 0 {
		clause = strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE `+clause, args...).Scan(&total); err != nil {
		return RequestPage{}, wrapStorage(err)
	}

	rowArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE `+clause+
		` ORDER BY timestamp DESC LIMIT ? OFFSET ?`, rowArgs...)
	if err != nil {
		return RequestPage{}, wrapStorage(err)
	}
	defer rows.Close()

	var out []RequestLog
	for rows.Next() {
		r, err := scanRequestLog(rows)
		if err != nil {
			return RequestPage{}, wrapStorage(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return RequestPage{}, wrapStorage(err)
	}

	return RequestPage{Rows: out, Total: total, EffectiveLimit: limit, EffectiveOffset: offset}, nil
}

// GetAnalytics aggregates totals across all request logs, per spec §4.1.
func (s *Store) GetAnalytics(ctx context.Context) (Analytics, error) {
	var a Analytics
	var avgLatency float64
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(success), 0),
		COALESCE(SUM(1 - success), 0),
		COALESCE(AVG(latency_ms), 0),
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cached_tokens), 0)
		FROM requests`)
	if err := row.Scan(&a.Total, &a.Success, &a.Failure, &avgLatency, &a.InputTokens, &a.OutputTokens, &a.CachedTokens); err != nil {
		return Analytics{}, wrapStorage(err)
	}
	a.AvgLatencyMs = avgLatency
	a.EstimatedCost = float64(a.InputTokens)/1e6*3.0 + float64(a.OutputTokens)/1e6*15.0 + float64(a.CachedTokens)/1e6*0.3
	return a, nil
}
