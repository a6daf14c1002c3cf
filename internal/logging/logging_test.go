package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger := NewLogger(Config{Level: "debug", Format: "json", Output: path})

	logger.Debug().Str("component", "test").Msg("hello")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("日志文件应已创建: %v", err)
	}
	if !strings.Contains(string(raw), `"message":"hello"`) {
		t.Fatalf("日志内容不正确: %s", raw)
	}
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("日志级别应为 debug, 实际 %s", logger.GetLevel())
	}
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	logger := NewLogger(Config{Level: "nonsense", Output: "stderr"})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("非法级别应回落到 info, 实际 %s", logger.GetLevel())
	}
}
