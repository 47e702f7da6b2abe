package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ETHEREUM ADAPTER - Real-chain implementation of the Client capability
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// ERC-20 / V2-router function selectors
	selectorApprove   = "095ea7b3" // approve(address,uint256)
	selectorAllowance = "dd62ed3e" // allowance(address,address)
	selectorSwapExact = "38ed1739" // swapExactTokensForTokens(uint256,uint256,address[],address,uint256)

	receiptPollInterval = 2 * time.Second
	tokenDecimals       = 18
)

// transferTopic is the ERC-20 Transfer(address,address,uint256) event signature
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// V2-style router addresses per venue (Polygon)
var venueRouters = map[string]string{
	"quickswap": "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff",
	"sushiswap": "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506",
	"uniswap":   "0xedf6066a2b290C185783862C7F4776A2C8077AD1",
}

// EthClient implements Client against a JSON-RPC node
type EthClient struct {
	ec      *ethclient.Client
	chainID *big.Int

	privateKey *ecdsa.PrivateKey
	address    common.Address

	submitRetries int
	retryBase     time.Duration
}

// NewEthClient dials the node and loads the signing key (hex, optional:
// read-only without it)
func NewEthClient(rpcURL, privateKeyHex string, submitRetries int) (*EthClient, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	chainID, err := ec.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	if submitRetries <= 0 {
		submitRetries = 3
	}

	c := &EthClient{
		ec:            ec,
		chainID:       chainID,
		submitRetries: submitRetries,
		retryBase:     500 * time.Millisecond,
	}

	if privateKeyHex != "" {
		pk, err := crypto.HexToECDSA(privateKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.privateKey = pk
		c.address = crypto.PubkeyToAddress(pk.PublicKey)
	}

	log.Info().
		Str("chain_id", chainID.String()).
		Str("address", c.address.Hex()).
		Msg("⛓️ Chain client connected")

	return c, nil
}

// Address returns the signing wallet address
func (c *EthClient) Address() string {
	return c.address.Hex()
}

// GetBalance returns the native balance of addr in whole-token units
func (c *EthClient) GetBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	var wei *big.Int
	err := Retry(ctx, 3, c.retryBase, "getBalance", func() error {
		var e error
		wei, e = c.ec.BalanceAt(ctx, common.HexToAddress(addr), nil)
		return e
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", addr, err)
	}
	return fromWei(wei), nil
}

// GetFeeHistory samples the last 10 blocks at the 50th reward percentile
func (c *EthClient) GetFeeHistory(ctx context.Context) (*FeeHistory, error) {
	hist, err := c.ec.FeeHistory(ctx, 10, nil, []float64{50})
	if err != nil {
		return nil, fmt.Errorf("fee history: %w", err)
	}

	out := &FeeHistory{}
	if n := len(hist.BaseFee); n > 0 {
		out.BaseFee = hist.BaseFee[n-1]
	}
	for _, r := range hist.Reward {
		if len(r) > 0 {
			out.Rewards = append(out.Rewards, r[0])
		}
	}
	return out, nil
}

// GetBlockNumber returns the current head block
func (c *EthClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	return c.ec.BlockNumber(ctx)
}

// GetLogs fetches and decodes ERC-20 Transfer events in the block range
func (c *EthClient) GetLogs(ctx context.Context, filter LogFilter) ([]TransferEvent, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(filter.FromBlock),
		Topics:    [][]common.Hash{{transferTopic}},
	}
	if filter.ToBlock > 0 {
		q.ToBlock = new(big.Int).SetUint64(filter.ToBlock)
	}

	var logs []ethtypes.Log
	err := Retry(ctx, 3, c.retryBase, "getLogs", func() error {
		var e error
		logs, e = c.ec.FilterLogs(ctx, q)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	events := make([]TransferEvent, 0, len(logs))
	for _, l := range logs {
		// Indexed from/to plus a uint256 amount in data
		if len(l.Topics) < 3 || len(l.Data) < 32 {
			continue
		}
		events = append(events, TransferEvent{
			Token:  l.Address.Hex(),
			From:   common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
			To:     common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
			Amount: fromWei(new(big.Int).SetBytes(l.Data[:32])),
			Block:  l.BlockNumber,
			TxHash: l.TxHash.Hex(),
		})
	}
	return events, nil
}

// Allowance reads ERC-20 allowance(owner, spender) for the signing wallet
func (c *EthClient) Allowance(ctx context.Context, token, spender string) (decimal.Decimal, error) {
	data := append(common.Hex2Bytes(selectorAllowance),
		append(common.LeftPadBytes(c.address.Bytes(), 32),
			common.LeftPadBytes(common.HexToAddress(spender).Bytes(), 32)...)...)

	tokenAddr := common.HexToAddress(token)
	raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("allowance call: %w", err)
	}
	return fromWei(new(big.Int).SetBytes(raw)), nil
}

// Approve submits an ERC-20 approve and waits for inclusion
func (c *EthClient) Approve(ctx context.Context, token, spender string, amount decimal.Decimal) error {
	data := append(common.Hex2Bytes(selectorApprove),
		append(common.LeftPadBytes(common.HexToAddress(spender).Bytes(), 32),
			common.LeftPadBytes(toWei(amount).Bytes(), 32)...)...)

	tokenAddr := common.HexToAddress(token)
	hash, err := c.sendTx(ctx, tokenAddr, data, nil, nil)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}

	receipt, err := c.WaitForReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("approve receipt: %w", err)
	}
	if !receipt.Success {
		return fmt.Errorf("approve tx %s reverted", hash)
	}

	log.Debug().
		Str("token", token).
		Str("spender", spender).
		Str("amount", amount.String()).
		Msg("🔓 Approval confirmed")
	return nil
}

// Submit encodes and broadcasts a V2-style swapExactTokensForTokens
func (c *EthClient) Submit(ctx context.Context, tx *SwapTx) (string, error) {
	router, ok := venueRouters[tx.Venue]
	if !ok {
		return "", fmt.Errorf("unknown venue %q", tx.Venue)
	}

	data := packSwap(tx, c.address)

	var hash string
	err := Retry(ctx, c.submitRetries, c.retryBase, "submit", func() error {
		var e error
		hash, e = c.sendTx(ctx, common.HexToAddress(router), data, tx.GasFeeCap, tx.GasTipCap)
		return e
	})
	if err != nil {
		return "", fmt.Errorf("submit swap: %w", err)
	}

	log.Info().
		Str("tx", hash).
		Str("venue", tx.Venue).
		Str("amount_in", tx.AmountIn.String()).
		Msg("📤 Swap broadcast")
	return hash, nil
}

// WaitForReceipt polls until the receipt lands or ctx expires.
// AmountOut is decoded from the last Transfer log paying our wallet.
func (c *EthClient) WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	hash := common.HexToHash(txHash)
	for {
		r, err := c.ec.TransactionReceipt(ctx, hash)
		if err == nil && r != nil {
			out := &Receipt{
				TxHash:  txHash,
				Success: r.Status == ethtypes.ReceiptStatusSuccessful,
				GasUsed: r.GasUsed,
				Block:   r.BlockNumber.Uint64(),
			}
			for _, l := range r.Logs {
				if len(l.Topics) == 3 && l.Topics[0] == transferTopic &&
					common.BytesToAddress(l.Topics[2].Bytes()) == c.address && len(l.Data) >= 32 {
					out.AmountOut = fromWei(new(big.Int).SetBytes(l.Data[:32]))
				}
			}
			return out, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// sendTx signs and broadcasts a dynamic-fee transaction
func (c *EthClient) sendTx(ctx context.Context, to common.Address, data []byte, feeCap, tipCap *big.Int) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("no signing key loaded")
	}

	nonce, err := c.ec.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	if feeCap == nil {
		if feeCap, err = c.ec.SuggestGasPrice(ctx); err != nil {
			return "", fmt.Errorf("suggest gas price: %w", err)
		}
	}
	if tipCap == nil {
		if tipCap, err = c.ec.SuggestGasTipCap(ctx); err != nil {
			return "", fmt.Errorf("suggest tip: %w", err)
		}
	}

	gasLimit, err := c.ec.EstimateGas(ctx, ethereum.CallMsg{
		From: c.address,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	signed, err := ethtypes.SignNewTx(c.privateKey, ethtypes.LatestSignerForChainID(c.chainID), &ethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      data,
	})
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// packSwap encodes swapExactTokensForTokens(amountIn, minOut, [in,out], to, deadline)
func packSwap(tx *SwapTx, recipient common.Address) []byte {
	data := common.Hex2Bytes(selectorSwapExact)
	data = append(data, common.LeftPadBytes(toWei(tx.AmountIn).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(toWei(tx.MinAmountOut).Bytes(), 32)...)
	// offset of the address[] path (5 head words)
	data = append(data, common.LeftPadBytes(big.NewInt(5*32).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(recipient.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(tx.Deadline.Unix()).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(2).Bytes(), 32)...) // path length
	data = append(data, common.LeftPadBytes(common.HexToAddress(tx.TokenIn).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(tx.TokenOut).Bytes(), 32)...)
	return data
}

func fromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -tokenDecimals)
}

func toWei(d decimal.Decimal) *big.Int {
	return d.Shift(tokenDecimals).BigInt()
}
