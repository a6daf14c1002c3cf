package series

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pricePoint(date string, ts int64, price float64) Point {
	return Point{Timestamp: ts, Date: date, Price: Float(price)}
}

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		dropped int
		steps   []string
	}{
		{name: "raw list", raw: `[{"date":"2024-01-01","timestamp":1,"price":1}]`, want: 1},
		{name: "data wrapper", raw: `{"data":[{"date":"2024-01-01","price":1},{"date":"2024-01-02","price":2}]}`, want: 2, steps: []string{"data-field"}},
		{name: "double encoded", raw: `"[{\"date\":\"2024-01-01\",\"price\":1}]"`, want: 1, steps: []string{"decoded-string"}},
		{name: "double encoded wrapper", raw: `"{\"data\":[{\"date\":\"2024-01-01\",\"price\":1}]}"`, want: 1, steps: []string{"decoded-string", "data-field"}},
		{name: "single object", raw: `{"date":"2024-01-01","price":1}`, want: 1, steps: []string{"single-object"}},
		{name: "drops bad items", raw: `[1,"x",{"price":1},{"date":"","price":2},{"date":"2024-01-03","price":"bad"},{"date":"2024-01-04","price":4}]`, want: 1, dropped: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			norm, err := Normalize([]byte(tt.raw))
			require.NoError(t, err)
			assert.Len(t, norm.Points, tt.want)
			assert.Equal(t, tt.dropped, norm.Dropped)
			assert.Equal(t, tt.steps, norm.Steps)
		})
	}
}

func TestNormalizeMalformed(t *testing.T) {
	for _, raw := range []string{"", "{not json", `"still not json"`, `42`} {
		_, err := Normalize([]byte(raw))
		var malformed *MalformedInputError
		require.Error(t, err, "input %q", raw)
		assert.True(t, errors.As(err, &malformed), "input %q", raw)
	}
}

func TestMergeOverwritesByDate(t *testing.T) {
	existing := Collection{Indicator: BTCPrice, Points: []Point{pricePoint("2024-01-01", 1704067200, 1)}}
	incoming := Collection{Indicator: BTCPrice, Points: []Point{pricePoint("2024-01-01", 1704067200, 2)}}

	merged := Merge(existing, incoming)
	require.Len(t, merged.Points, 1)
	v, ok := merged.Points[0].ValueOf(BTCPrice)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestMergeUnionSortedNewestFirst(t *testing.T) {
	existing := Collection{Indicator: AHR999, Points: []Point{
		{Timestamp: 100, Date: "2024-01-01", AHR999: Float(0.5)},
		{Timestamp: 300, Date: "2024-01-03", AHR999: Float(0.7)},
	}}
	incoming := Collection{Indicator: AHR999, Points: []Point{
		{Timestamp: 200, Date: "2024-01-02", AHR999: Float(0.6)},
	}}

	merged := Merge(existing, incoming)
	require.Len(t, merged.Points, 3)
	assert.Equal(t, []string{"2024-01-03", "2024-01-02", "2024-01-01"}, []string{
		merged.Points[0].Date, merged.Points[1].Date, merged.Points[2].Date,
	})
}

func TestIsFreshHandlesMilliseconds(t *testing.T) {
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)

	seconds := Collection{Indicator: FearGreed, Points: []Point{{Timestamp: recent.Unix(), Date: "2024-05-02"}}}
	millis := Collection{Indicator: BTCPrice, Points: []Point{{Timestamp: recent.UnixMilli(), Date: "2024-05-02"}}}
	stale := Collection{Indicator: BTCPrice, Points: []Point{{Timestamp: now.Add(-25 * time.Hour).UnixMilli(), Date: "2024-05-01"}}}

	assert.True(t, IsFresh(seconds, 24*time.Hour, now))
	assert.True(t, IsFresh(millis, 24*time.Hour, now))
	assert.False(t, IsFresh(stale, 24*time.Hour, now))
	assert.False(t, IsFresh(Collection{Indicator: BTCPrice}, 24*time.Hour, now))
}

func TestStoreLoadMalformedIsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, BTCPrice.CacheFile()), []byte("{broken"), 0o644))

	store := NewStore(dir, zerolog.Nop())
	c := store.Load(BTCPrice)
	assert.Equal(t, BTCPrice, c.Indicator)
	assert.Empty(t, c.Points)

	missing := store.Load(AHR999)
	assert.Empty(t, missing.Points)
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zerolog.Nop())

	c := Collection{Indicator: BTCPrice, Points: []Point{
		pricePoint("2024-01-01", 1704067200000, 42000),
		pricePoint("2024-01-02", 1704153600000, 43000),
	}}
	require.NoError(t, store.Save(c))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, BTCPrice.CacheFile(), entries[0].Name())

	loaded := store.Load(BTCPrice)
	require.Len(t, loaded.Points, 2)
	assert.Equal(t, "2024-01-02", loaded.Points[0].Date)
}

func TestLoadHistoricalToleratesOneBadSeries(t *testing.T) {
	dir := t.TempDir()
	doc := `{
		"btc_price": [{"timestamp": 1704067200000, "date": "2024-01-01", "price": 42000}],
		"ahr999": "not a series",
		"fear_greed": {"data": [{"timestamp": 1704067200, "date": "2024-01-01", "value": 55, "value_classification": "Greed"}]},
		"last_updated": 1704067200
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoricalFile), []byte(doc), 0o644))

	h, ok := NewStore(dir, zerolog.Nop()).LoadHistorical()
	require.True(t, ok)
	assert.Len(t, h.BTCPrice, 1)
	assert.Empty(t, h.AHR999)
	require.Len(t, h.FearGreed, 1)
	assert.Equal(t, "Greed", h.FearGreed[0].Classification)
	assert.Equal(t, int64(1704067200), h.LastUpdated)
}

func TestFixFileWritesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fear_greed_history.json")
	original := `"{\"data\":[{\"date\":\"2024-01-01\",\"value\":10},{\"value\":3}]}"`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	res, err := FixFile(path)
	require.NoError(t, err)
	assert.True(t, res.Changed())
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, res.Kept)

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, original, string(backup))

	again, err := FixFile(path)
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

func TestFixFileKeepsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily_data.json")
	original := `{"data":[{"date":"2024-01-01","price":42000.5,"fear_greed_value":55},"junk"],"count":2}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	res, err := FixFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"data-field"}, res.Steps)
	assert.Equal(t, 1, res.Dropped)

	repaired, err := os.ReadFile(path)
	require.NoError(t, err)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(repaired, &items))
	require.Len(t, items, 1)
	assert.Equal(t, float64(55), items[0]["fear_greed_value"])
	assert.Equal(t, 42000.5, items[0]["price"])
}
