package effectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/models"
)

var watchlistKinds = map[string]bool{"ip": true, "domain": true, "hash": true, "user": true, "url": true}

// WatchlistRequest is the action data of an AddToWatchlist suggestion.
type WatchlistRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Note  string `json:"note,omitempty"`
}

type watchlistAfter struct {
	EntryUUID string `json:"entry_uuid"`
}

// Watchlist adds indicators to the watchlist table.
type Watchlist struct {
	db *gorm.DB
}

func NewWatchlist(db *gorm.DB) *Watchlist {
	return &Watchlist{db: db}
}

func parseWatchlist(data json.RawMessage) (WatchlistRequest, error) {
	var req WatchlistRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode add_to_watchlist data: %w", err)
	}
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	req.Value = strings.TrimSpace(req.Value)
	if !watchlistKinds[req.Kind] {
		return req, fmt.Errorf("unsupported watchlist kind %q", req.Kind)
	}
	if req.Value == "" {
		return req, errors.New("value is required")
	}
	return req, nil
}

func (w *Watchlist) Validate(data json.RawMessage) error {
	_, err := parseWatchlist(data)
	return err
}

func (w *Watchlist) Execute(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	req, err := parseWatchlist(data)
	if err != nil {
		return nil, nil, err
	}
	entry := models.WatchlistEntry{Kind: req.Kind, Value: req.Value, Note: req.Note}
	if err := w.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, nil, fmt.Errorf("create watchlist entry: %w", err)
	}
	after, _ := json.Marshal(watchlistAfter{EntryUUID: entry.UUID})
	return json.RawMessage(`{}`), after, nil
}

func (w *Watchlist) Rollback(ctx context.Context, before, after json.RawMessage) error {
	var state watchlistAfter
	if err := json.Unmarshal(after, &state); err != nil || state.EntryUUID == "" {
		return errors.New("after state has no entry uuid")
	}
	if err := w.db.WithContext(ctx).Where("uuid = ?", state.EntryUUID).Delete(&models.WatchlistEntry{}).Error; err != nil {
		return fmt.Errorf("delete watchlist entry: %w", err)
	}
	return nil
}
