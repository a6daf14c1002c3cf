package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-advisor/internal/advice"
	"btc-advisor/internal/daily"
)

var fixedNow = time.Date(2024, 6, 30, 9, 15, 0, 0, time.UTC)

func price(v float64) *float64 { return &v }

func records(dates ...string) []daily.Record {
	out := make([]daily.Record, 0, len(dates))
	for i, d := range dates {
		out = append(out, daily.Record{Date: d, Price: price(60000 + float64(i))})
	}
	return out
}

func TestSelectRecordsWindow(t *testing.T) {
	got := SelectRecords(records("2024-01-01", "2024-06-01", "2024-06-29", "2024-05-15"), 1, fixedNow)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-06-29", got[0].Date)
	assert.Equal(t, "2024-06-01", got[1].Date)
}

func TestSelectRecordsFallsBackToNewest(t *testing.T) {
	var dates []string
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		dates = append(dates, start.AddDate(0, 0, i).Format("2006-01-02"))
	}
	got := SelectRecords(records(dates...), 3, fixedNow)
	require.Len(t, got, fallbackRecords)
	assert.Equal(t, dates[149], got[0].Date)
	assert.Empty(t, SelectRecords(nil, 3, fixedNow))
}

func TestBuildPromptEmbedsDataAndSignal(t *testing.T) {
	overall := advice.Overall{Action: "small buy", Reason: "Combined: AHR999 (0.700) ...", Confidence: advice.Medium}
	prompt, err := BuildPrompt(records("2024-06-29", "2024-06-28"), overall, 1000, fixedNow)
	require.NoError(t, err)

	assert.Contains(t, prompt, "(2024-06-30)")
	assert.Contains(t, prompt, "total budget: $1000")
	assert.Contains(t, prompt, "- action: small buy")
	assert.Contains(t, prompt, "- confidence: medium")
	assert.Contains(t, prompt, "from 2024-06-28 to 2024-06-29")
	assert.Contains(t, prompt, `"date":"2024-06-29"`)
}

func TestAdviseOfflineSavesPrompt(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{ResponsesDir: dir, Months: 3}, zerolog.Nop())
	a.now = func() time.Time { return fixedNow }
	require.True(t, a.Offline(), "missing api key forces offline mode")

	res, err := a.Advise(context.Background(), records("2024-06-29"), advice.Fallback())
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Equal(t, filepath.Join(dir, "prompt_20240630_091500.txt"), res.FilePath)

	saved, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, res.Prompt, string(saved))
}

func TestAdviseNoData(t *testing.T) {
	a := New(Options{ResponsesDir: t.TempDir()}, zerolog.Nop())
	_, err := a.Advise(context.Background(), nil, advice.Fallback())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestAdviseCallsChatCompletion(t *testing.T) {
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1719738900,
			"model": "deepseek-chat",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Hold and accumulate slowly.  "}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	a := New(Options{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		Model:        "deepseek-chat",
		Temperature:  0.7,
		Timeout:      5 * time.Second,
		ResponsesDir: dir,
	}, zerolog.Nop())
	a.now = func() time.Time { return fixedNow }

	res, err := a.Advise(context.Background(), records("2024-06-29"), advice.Fallback())
	require.NoError(t, err)
	assert.False(t, res.Offline)
	assert.Equal(t, "Hold and accumulate slowly.", res.Advice)
	assert.Equal(t, filepath.Join(dir, "advice_20240630_091500.txt"), res.FilePath)

	assert.Equal(t, "deepseek-chat", body.Model)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "user", body.Messages[1].Role)
	assert.Contains(t, body.Messages[1].Content, "observe/hold")
}
