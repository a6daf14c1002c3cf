package fetcher

import (
	"context"
	"testing"
)

func TestVaultMissingConfig(t *testing.T) {
	v := NewVault(VaultOptions{}, noopLogger())
	if v.Configured() {
		t.Fatal("空配置不应视为已配置")
	}
	if _, _, err := v.FetchRate(context.Background()); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	v = NewVault(VaultOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, _, err := v.FetchRate(context.Background()); err == nil {
		t.Fatal("缺少合约地址应报错")
	}
}
