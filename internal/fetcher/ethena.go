package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// ProtocolSnapshot is the Ethena state recorded by the monitor. Yields are
// percentages, TVL is in USD.
type ProtocolSnapshot struct {
	ProtocolYield float64
	StakingYield  float64
	TVL           float64
}

// EthenaOptions parameterise the protocol fetcher.
type EthenaOptions struct {
	DefiLlamaURL string
	YieldURL     string
	HTTP         HTTPOptions
}

// Ethena combines DefiLlama TVL with the published Ethena yields.
type Ethena struct {
	opts  EthenaOptions
	llama *jsonClient
	yield *jsonClient
}

// NewEthena constructs the protocol fetcher.
func NewEthena(opts EthenaOptions, logger zerolog.Logger) *Ethena {
	if opts.DefiLlamaURL == "" {
		opts.DefiLlamaURL = "https://api.llama.fi/protocol/ethena"
	}
	if opts.YieldURL == "" {
		opts.YieldURL = "https://ethena.fi/api/yields/protocol-and-staking-yield"
	}
	return &Ethena{
		opts:  opts,
		llama: newJSONClient("defillama", opts.HTTP, logger),
		yield: newJSONClient("ethena", opts.HTTP, logger),
	}
}

type llamaProtocol struct {
	TVL []struct {
		Date              json.RawMessage `json:"date"`
		TotalLiquidityUSD json.RawMessage `json:"totalLiquidityUSD"`
	} `json:"tvl"`
}

type ethenaYields struct {
	ProtocolYield struct {
		Value json.RawMessage `json:"value"`
	} `json:"protocolYield"`
	StakingYield struct {
		Value json.RawMessage `json:"value"`
	} `json:"stakingYield"`
}

// FetchProtocol returns the latest TVL and yields.
func (e *Ethena) FetchProtocol(ctx context.Context) (ProtocolSnapshot, error) {
	var protocol llamaProtocol
	if err := e.llama.getJSON(ctx, e.opts.DefiLlamaURL, &protocol); err != nil {
		return ProtocolSnapshot{}, fmt.Errorf("fetch ethena tvl: %w", err)
	}
	if len(protocol.TVL) == 0 {
		return ProtocolSnapshot{}, fmt.Errorf("defillama returned no tvl history")
	}
	tvl, ok, err := number(protocol.TVL[len(protocol.TVL)-1].TotalLiquidityUSD)
	if err != nil || !ok {
		return ProtocolSnapshot{}, fmt.Errorf("defillama latest tvl missing")
	}

	var yields ethenaYields
	if err := e.yield.getJSON(ctx, e.opts.YieldURL, &yields); err != nil {
		return ProtocolSnapshot{}, fmt.Errorf("fetch ethena yields: %w", err)
	}
	protocolYield, ok, err := number(yields.ProtocolYield.Value)
	if err != nil || !ok {
		return ProtocolSnapshot{}, fmt.Errorf("ethena protocol yield missing")
	}
	stakingYield, _, err := number(yields.StakingYield.Value)
	if err != nil {
		return ProtocolSnapshot{}, fmt.Errorf("ethena staking yield: %w", err)
	}

	return ProtocolSnapshot{ProtocolYield: protocolYield, StakingYield: stakingYield, TVL: tvl}, nil
}

var _ ProtocolFetcher = (*Ethena)(nil)
