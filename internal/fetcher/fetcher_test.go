package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/series"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestNumberAcceptsStringsAndNumbers(t *testing.T) {
	cases := map[string]float64{`42.5`: 42.5, `"0.31"`: 0.31, `1700000000`: 1700000000}
	for raw, want := range cases {
		got, ok, err := number(json.RawMessage(raw))
		if err != nil || !ok || got != want {
			t.Fatalf("%s 解析结果 %v %v %v, 期望 %v", raw, got, ok, err, want)
		}
	}
	if _, ok, err := number(json.RawMessage(`null`)); ok || err != nil {
		t.Fatal("null 应视为缺失且不报错")
	}
	if _, _, err := number(json.RawMessage(`"abc"`)); err == nil {
		t.Fatal("非数字字符串应报错")
	}
}

func TestBinanceFetchSeries(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("意外的路径 %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit 应为 2, 实际 %s", got)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol 应为 BTCUSDT, 实际 %s", got)
		}
		rows := [][]any{
			{day.UnixMilli(), "60000", "61000", "59000", "60500.5", "100"},
			{day.Add(24 * time.Hour).UnixMilli(), "60500", "62000", "60000", "61800", "90"},
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, HTTP: HTTPOptions{Timeout: time.Second}}, noopLogger())
	c, err := b.FetchSeries(context.Background(), 2)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if c.Indicator != series.BTCPrice || c.Len() != 2 {
		t.Fatalf("期望 2 个价格点, 实际 %+v", c)
	}
	latest, _ := c.Latest()
	if latest.Date != "2024-03-02" || *latest.Price != 61800 {
		t.Fatalf("最新点应为 2024-03-02 收盘 61800, 实际 %s %v", latest.Date, *latest.Price)
	}
}

func TestAHR999FetchSeries(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": [][]any{
				{base, 0.40, 42000, 38000, 1.1},
				{base + 86400, 0.42, 43000, 38100, 1.12},
				{base + 2*86400, "0.44", 44000, 38200, 1.15},
				{base + 3*86400},
			},
		})
	}))
	defer srv.Close()

	a := NewAHR999(AHR999Options{URL: srv.URL, KeepExtra: true, HTTP: HTTPOptions{Timeout: time.Second}}, noopLogger())
	c, err := a.FetchSeries(context.Background(), 3)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	// the last three rows are kept and the short one is skipped
	if c.Len() != 2 {
		t.Fatalf("期望 2 个有效点, 实际 %d", c.Len())
	}
	latest, _ := c.Latest()
	if latest.Date != "2024-01-03" || *latest.AHR999 != 0.44 {
		t.Fatalf("最新点不正确: %+v", latest)
	}
	if latest.MA200 == nil || *latest.MA200 != 38200 {
		t.Fatal("KeepExtra 时应保留 ma200")
	}
}

func TestAHR999RejectsErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 500, "data": [][]any{}})
	}))
	defer srv.Close()

	a := NewAHR999(AHR999Options{URL: srv.URL, HTTP: HTTPOptions{Timeout: time.Second}}, noopLogger())
	if _, err := a.FetchSeries(context.Background(), 30); err == nil {
		t.Fatal("非成功 code 应返回错误")
	}
}

func TestFearGreedCutoff(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"value": "72", "value_classification": "Greed", "timestamp": "1715299200"},
				{"value": "65", "value_classification": "Greed", "timestamp": "1715212800"},
				{"value": "20", "value_classification": "Extreme Fear", "timestamp": "1704067200"},
			},
		})
	}))
	defer srv.Close()

	f := NewFearGreed(FearGreedOptions{
		URL:  srv.URL,
		HTTP: HTTPOptions{Timeout: time.Second},
		Now:  func() time.Time { return now },
	}, noopLogger())
	c, err := f.FetchSeries(context.Background(), 7)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("7 天之外的数据应被过滤, 实际 %d 个点", c.Len())
	}
	latest, _ := c.Latest()
	if *latest.Value != 72 || latest.Classification != "Greed" || latest.Date != "2024-05-10" {
		t.Fatalf("最新点不正确: %+v", latest)
	}
}

func TestJSONClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"ok": 1})
	}))
	defer srv.Close()

	c := newJSONClient("test", HTTPOptions{Timeout: time.Second, MaxRetries: 3}, noopLogger())
	c.sleep = noSleep

	var out map[string]int
	if err := c.getJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("重试后应成功: %v", err)
	}
	if calls.Load() != 3 || out["ok"] != 1 {
		t.Fatalf("期望 3 次请求, 实际 %d", calls.Load())
	}
}

func TestJSONClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"msg": "bad symbol"})
	}))
	defer srv.Close()

	c := newJSONClient("test", HTTPOptions{Timeout: time.Second, MaxRetries: 3}, noopLogger())
	c.sleep = noSleep

	var out map[string]any
	err := c.getJSON(context.Background(), srv.URL, &out)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("应返回 HTTPError, 实际 %v", err)
	}
	if httpErr.Status != http.StatusBadRequest || httpErr.Detail != "bad symbol" {
		t.Fatalf("错误内容不正确: %+v", httpErr)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx 不应重试, 实际请求 %d 次", calls.Load())
	}
}

func TestEthenaFetchProtocol(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/protocol/ethena", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tvl": []map[string]any{
				{"date": 1714953600, "totalLiquidityUSD": 2.5e9},
				{"date": 1715040000, "totalLiquidityUSD": 2.6e9},
			},
		})
	})
	mux.HandleFunc("/yields", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"protocolYield": map[string]any{"value": 12.5},
			"stakingYield":  map[string]any{"value": "9.75"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewEthena(EthenaOptions{
		DefiLlamaURL: srv.URL + "/protocol/ethena",
		YieldURL:     srv.URL + "/yields",
		HTTP:         HTTPOptions{Timeout: time.Second},
	}, noopLogger())
	snap, err := e.FetchProtocol(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if snap.TVL != 2.6e9 || snap.ProtocolYield != 12.5 || snap.StakingYield != 9.75 {
		t.Fatalf("快照不正确: %+v", snap)
	}
}

type stubSeries struct {
	ind   series.Indicator
	out   series.Collection
	err   error
	calls int
}

func (s *stubSeries) Indicator() series.Indicator { return s.ind }

func (s *stubSeries) FetchSeries(context.Context, int) (series.Collection, error) {
	s.calls++
	return s.out, s.err
}

func point(date string, price float64) series.Point {
	ts, _ := time.Parse("2006-01-02", date)
	return series.Point{Timestamp: ts.Unix(), Date: date, Price: series.Float(price)}
}

func TestCachedUsesFreshCache(t *testing.T) {
	store := series.NewStore(t.TempDir(), noopLogger())
	now := time.Date(2024, 6, 2, 6, 0, 0, 0, time.UTC)
	if err := store.Save(series.Collection{Indicator: series.BTCPrice, Points: []series.Point{point("2024-06-02", 70000)}}); err != nil {
		t.Fatalf("写入缓存失败: %v", err)
	}

	src := &stubSeries{ind: series.BTCPrice}
	c := NewCached(src, store, 24*time.Hour, noopLogger())
	c.now = func() time.Time { return now }

	got, err := c.FetchSeries(context.Background(), 30)
	if err != nil || got.Len() != 1 {
		t.Fatalf("新鲜缓存应直接返回: %v %d", err, got.Len())
	}
	if src.calls != 0 {
		t.Fatal("缓存新鲜时不应请求远端")
	}
}

func TestCachedMergesStaleCache(t *testing.T) {
	store := series.NewStore(t.TempDir(), noopLogger())
	now := time.Date(2024, 6, 5, 6, 0, 0, 0, time.UTC)
	_ = store.Save(series.Collection{Indicator: series.BTCPrice, Points: []series.Point{
		point("2024-06-01", 68000),
		point("2024-06-02", 69000),
	}})

	src := &stubSeries{ind: series.BTCPrice, out: series.Collection{Indicator: series.BTCPrice, Points: []series.Point{
		point("2024-06-02", 69500),
		point("2024-06-03", 70000),
	}}}
	c := NewCached(src, store, 24*time.Hour, noopLogger())
	c.now = func() time.Time { return now }

	got, err := c.FetchSeries(context.Background(), 30)
	if err != nil {
		t.Fatalf("合并不应报错: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("期望合并后 3 个点, 实际 %d", got.Len())
	}
	if got.Points[0].Date != "2024-06-03" || *got.Points[1].Price != 69500 {
		t.Fatalf("同日期应以新数据为准: %+v", got.Points)
	}
	if reloaded := store.Load(series.BTCPrice); reloaded.Len() != 3 {
		t.Fatalf("合并结果应写回缓存, 实际 %d", reloaded.Len())
	}
}

func TestCachedFallsBackToStaleOnError(t *testing.T) {
	store := series.NewStore(t.TempDir(), noopLogger())
	_ = store.Save(series.Collection{Indicator: series.BTCPrice, Points: []series.Point{point("2024-01-01", 42000)}})

	src := &stubSeries{ind: series.BTCPrice, err: errors.New("boom")}
	c := NewCached(src, store, time.Hour, noopLogger())

	got, err := c.FetchSeries(context.Background(), 30)
	if err != nil || got.Len() != 1 {
		t.Fatalf("远端失败时应返回旧缓存: %v %d", err, got.Len())
	}

	empty := NewCached(&stubSeries{ind: series.AHR999, err: errors.New("boom")}, store, time.Hour, noopLogger())
	if _, err := empty.FetchSeries(context.Background(), 30); err == nil {
		t.Fatal("无缓存且远端失败时应报错")
	}
}
