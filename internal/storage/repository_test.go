package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"btc-advisor/internal/config"
	"btc-advisor/internal/daily"
)

func TestUnconfiguredStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	if s.Configured() {
		t.Fatal("未配置连接池时 Configured 应为 false")
	}

	price := 60000.0
	if _, err := s.UpsertDaily(ctx, []daily.Record{{Date: "2024-01-01", Price: &price}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("UpsertDaily 应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, err := s.ListDailyBetween(ctx, time.Time{}, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListDailyBetween 应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, err := s.InsertRun(ctx, AdviceRun{ID: uuid.New()}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertRun 应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, err := s.ListRecentRuns(ctx, 5); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListRecentRuns 应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock 应返回 ErrNotConfigured, 实际 %v", err)
	}
	s.Close()

	var nilStore *Store
	if _, err := nilStore.CountDaily(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("nil Store 应返回 ErrNotConfigured, 实际 %v", err)
	}
}

func TestOpenWithoutDSN(t *testing.T) {
	s, err := Open(context.Background(), config.DatabaseConfig{})
	if err != nil {
		t.Fatalf("未配置 DSN 不应报错: %v", err)
	}
	if s.Configured() {
		t.Fatal("未配置 DSN 时不应连接数据库")
	}
}

func TestNewPoolRejectsBadDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("空 DSN 应报错")
	}
	if _, err := NewPool(context.Background(), config.DatabaseConfig{DSN: "postgres://%zz"}); err == nil {
		t.Fatal("非法 DSN 应报错")
	}
}

func TestNullableDecimal(t *testing.T) {
	if nullableDecimal(nil) != nil {
		t.Fatal("nil 应映射为 NULL")
	}
	v := 0.45
	if got := nullableDecimal(&v); got == nil {
		t.Fatal("非 nil 值不应为 NULL")
	}
}
