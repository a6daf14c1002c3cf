package fetcher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	erc4626ABIJSON = `[{"inputs":[{"internalType":"uint256","name":"shares","type":"uint256"}],"name":"convertToAssets","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	erc4626ABI abi.ABI
	oneShare   = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc4626ABIJSON))
	if err != nil {
		panic("failed to parse ERC-4626 ABI: " + err.Error())
	}
	erc4626ABI = parsed
}

// VaultOptions parameterise the on-chain fetcher.
type VaultOptions struct {
	RPCURL       string
	SUSDEAddress string
	Timeout      time.Duration
}

// Vault reads the sUSDe vault exchange rate over Ethereum RPC.
type Vault struct {
	opts      VaultOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewVault builds a vault rate fetcher.
func NewVault(opts VaultOptions, logger zerolog.Logger) *Vault {
	return &Vault{opts: opts, logger: logger.With().Str("component", "vault_fetcher").Logger()}
}

// Configured reports whether an RPC endpoint and vault address are set.
func (v *Vault) Configured() bool {
	return v.opts.RPCURL != "" && v.opts.SUSDEAddress != ""
}

// FetchRate returns the USDe redeemable for one sUSDe and the block it was read at.
func (v *Vault) FetchRate(ctx context.Context) (decimal.Decimal, uint64, error) {
	if v.opts.RPCURL == "" {
		return decimal.Decimal{}, 0, errors.New("ethereum rpc url not configured")
	}
	if v.opts.SUSDEAddress == "" {
		return decimal.Decimal{}, 0, errors.New("susde contract address not configured")
	}

	timeout := v.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := v.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	addr := common.HexToAddress(v.opts.SUSDEAddress)
	payload, err := erc4626ABI.Pack("convertToAssets", oneShare)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	outputs, err := erc4626ABI.Unpack("convertToAssets", res)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}
	if len(outputs) != 1 {
		return decimal.Decimal{}, 0, errors.New("unexpected convertToAssets response")
	}
	assets, ok := outputs[0].(*big.Int)
	if !ok {
		return decimal.Decimal{}, 0, errors.New("failed to decode convertToAssets output")
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	rate := decimal.NewFromBigInt(assets, -18)
	v.logger.Debug().Str("rate", rate.String()).Uint64("block", blockNumber).Msg("vault rate read")
	return rate, blockNumber, nil
}

func (v *Vault) getClient(ctx context.Context) (*ethclient.Client, error) {
	v.clientMux.Lock()
	defer v.clientMux.Unlock()

	if v.client != nil {
		return v.client, nil
	}

	client, err := ethclient.DialContext(ctx, v.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	v.client = client
	return client, nil
}

var _ VaultRateFetcher = (*Vault)(nil)
