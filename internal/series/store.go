package series

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/fsutil"
)

// HistoricalFile is the combined document of all indicators.
const HistoricalFile = "historical_data.json"

// Store persists per-indicator caches and the combined historical document
// as whole JSON files under one data directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore builds a file store rooted at dir.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{dir: dir, logger: logger.With().Str("component", "series_store").Logger()}
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path resolves a file name inside the data directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Load reads the cached points of an indicator. Missing or malformed files
// yield an empty collection.
func (s *Store) Load(ind Indicator) Collection {
	c := Collection{Indicator: ind}
	path := s.Path(ind.CacheFile())

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug().Str("indicator", string(ind)).Str("path", path).Msg("no cached series")
		} else {
			s.logger.Warn().Err(err).Str("path", path).Msg("read cached series failed")
		}
		return c
	}

	norm, err := Normalize(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("cached series is malformed; treating as empty")
		return c
	}
	if norm.Dropped > 0 {
		s.logger.Warn().Int("dropped", norm.Dropped).Str("path", path).Msg("dropped malformed cached points")
	}

	c.Points = norm.Points
	SortNewestFirst(c.Points)
	return c
}

// Save atomically replaces the cache document of the collection's indicator.
func (s *Store) Save(c Collection) error {
	if c.Indicator == "" {
		return fmt.Errorf("save series: %w", ErrUnknownIndicator)
	}
	points := c.Points
	if points == nil {
		points = []Point{}
	}
	path := s.Path(c.Indicator.CacheFile())
	if err := fsutil.WriteJSONAtomic(path, points); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("save series failed")
		return err
	}
	s.logger.Debug().Str("indicator", string(c.Indicator)).Int("points", len(points)).Msg("series saved")
	return nil
}

// Historical is the combined per-indicator document.
type Historical struct {
	BTCPrice    []Point `json:"btc_price"`
	AHR999      []Point `json:"ahr999"`
	FearGreed   []Point `json:"fear_greed"`
	LastUpdated int64   `json:"last_updated"`
}

// Collection returns the series of one indicator.
func (h Historical) Collection(ind Indicator) Collection {
	c := Collection{Indicator: ind}
	switch ind {
	case BTCPrice:
		c.Points = h.BTCPrice
	case AHR999:
		c.Points = h.AHR999
	case FearGreed:
		c.Points = h.FearGreed
	}
	return c
}

// Set replaces the series of the collection's indicator.
func (h *Historical) Set(c Collection) {
	switch c.Indicator {
	case BTCPrice:
		h.BTCPrice = c.Points
	case AHR999:
		h.AHR999 = c.Points
	case FearGreed:
		h.FearGreed = c.Points
	}
}

// Empty reports whether no indicator has any point.
func (h Historical) Empty() bool {
	return len(h.BTCPrice) == 0 && len(h.AHR999) == 0 && len(h.FearGreed) == 0
}

// UpdatedAt converts LastUpdated.
func (h Historical) UpdatedAt() time.Time {
	return time.Unix(h.LastUpdated, 0).UTC()
}

// LoadHistorical reads the combined document. Each indicator is normalized
// independently so one damaged series does not discard the others. The
// boolean is false when the file is absent or unreadable as a whole.
func (s *Store) LoadHistorical() (Historical, bool) {
	var h Historical
	path := s.Path(HistoricalFile)

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", path).Msg("read historical document failed")
		}
		return h, false
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("historical document is malformed; ignoring")
		return h, false
	}

	for _, ind := range All() {
		part, ok := doc[string(ind)]
		if !ok {
			continue
		}
		norm, err := Normalize(part)
		if err != nil {
			s.logger.Warn().Err(err).Str("indicator", string(ind)).Msg("historical series malformed; treating as empty")
			continue
		}
		if norm.Dropped > 0 {
			s.logger.Warn().Int("dropped", norm.Dropped).Str("indicator", string(ind)).Msg("dropped malformed historical points")
		}
		SortNewestFirst(norm.Points)
		h.Set(Collection{Indicator: ind, Points: norm.Points})
	}

	if ts, ok := doc["last_updated"]; ok {
		if err := json.Unmarshal(ts, &h.LastUpdated); err != nil {
			s.logger.Warn().Err(err).Msg("historical last_updated unreadable")
		}
	}
	return h, true
}

// SaveHistorical atomically replaces the combined document.
func (s *Store) SaveHistorical(h Historical) error {
	for _, ind := range All() {
		if h.Collection(ind).Points == nil {
			h.Set(Collection{Indicator: ind, Points: []Point{}})
		}
	}
	path := s.Path(HistoricalFile)
	if err := fsutil.WriteJSONAtomic(path, h); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("save historical document failed")
		return err
	}
	s.logger.Info().Str("path", path).
		Int("btc_price", len(h.BTCPrice)).
		Int("ahr999", len(h.AHR999)).
		Int("fear_greed", len(h.FearGreed)).
		Msg("historical document saved")
	return nil
}
