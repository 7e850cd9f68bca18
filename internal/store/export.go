package store

import (
	"context"
	"time"
)

// ChannelExport is the versioned envelope returned by GET /api/channels/export
// and accepted by POST /api/channels/import.
type ChannelExport struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Channels   []Channel `json:"channels"`
}

const exportVersion = 1

// ExportChannels returns every channel with secrets redacted by default.
func (s *Store) ExportChannels(ctx context.Context, includeSecrets bool) (ChannelExport, error) {
	channels, err := s.ListChannels(ctx)
	if err != nil {
		return ChannelExport{}, err
	}
	if !includeSecrets {
		for i := range channels {
			channels[i] = channels[i].Redacted()
		}
	}
	return ChannelExport{Version: exportVersion, ExportedAt: time.Now(), Channels: channels}, nil
}

// ImportChannels creates (or, with replaceExisting, overwrites by name) each
// channel in the export.
func (s *Store) ImportChannels(ctx context.Context, export ChannelExport, replaceExisting bool) (int, error) {
	existing, err := s.ListChannels(ctx)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]Channel, len(existing))
	for _, c := range existing {
		byName[c.Name] = c
	}

	imported := 0
	for _, c := range export.Channels {
		if cur, ok := byName[c.Name]; ok {
			if !replaceExisting {
				continue
			}
			status := c.Status
			if _, err := s.UpdateChannel(ctx, cur.ID, ChannelPatch{
				BaseURL: &c.BaseURL, APIKey: &c.APIKey, Models: c.Models,
				Priority: &c.Priority, Weight: &c.Weight, Status: &status, Transformers: c.Transformers,
			}); err != nil {
				return imported, err
			}
			imported++
			continue
		}
		if _, err := s.CreateChannel(ctx, ChannelInput{
			Name: c.Name, Type: c.Type, BaseURL: c.BaseURL, APIKey: c.APIKey,
			Models: c.Models, Priority: c.Priority, Weight: c.Weight, Transformers: c.Transformers,
		}); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
