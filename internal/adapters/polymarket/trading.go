package polymarket

// trading.go: Real order execution via Polymarket CLOB API.
//
// Implements ports.OrderPlacer using AuthClient for L1/L2 auth.
// Copy orders are GTC limit orders at the follower fill price, BUY or SELL.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobBalanceResponse struct {
	Balance string `json:"balance"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

const (
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
)

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// TradingClient implements ports.OrderPlacer and the gas/balance checks of the
// live executor.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client
}

// NewTradingClient creates a TradingClient. rpcURL is used for on-chain balance checks.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	return &TradingClient{auth: auth, rpcClient: rpc}, nil
}

// PlaceOrder signs and submits a limit order to the CLOB.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: creds: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(req)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(req.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("place order: clob error: %s", resp.ErrorMsg)
	}

	takenAmt, _ := parseUSDC(resp.TakingAmount).Float64()
	madeAmt, _ := parseUSDC(resp.MakingAmount).Float64()

	return domain.PlacedOrder{
		CLOBOrderID: resp.OrderID,
		Status:      resp.Status,
		TakenAmount: takenAmt,
		MadeAmount:  madeAmt,
	}, nil
}

// USDCBalance returns the on-chain USDC.e balance of the funder address.
func (tc *TradingClient) USDCBalance(ctx context.Context) (decimal.Decimal, error) {
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("usdc balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("usdc balance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return decimal.Zero, fmt.Errorf("usdc balance: unpack: %w", err)
	}

	raw, ok := vals[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("usdc balance: unexpected type %T", vals[0])
	}
	return decimal.NewFromBigInt(raw, -6), nil
}

// NativeBalance returns the MATIC/POL balance used to pay gas.
func (tc *TradingClient) NativeBalance(ctx context.Context) (decimal.Decimal, error) {
	wei, err := tc.rpcClient.BalanceAt(ctx, tc.auth.address, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("native balance: %w", err)
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

// GasPriceGwei returns the suggested gas price in gwei.
func (tc *TradingClient) GasPriceGwei(ctx context.Context) (decimal.Decimal, error) {
	wei, err := tc.rpcClient.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gas price: %w", err)
	}
	return decimal.NewFromBigInt(wei, -9), nil
}

// Address returns the trading wallet.
func (tc *TradingClient) Address() string {
	return tc.auth.Address()
}

// IsNegRisk queries the CLOB to determine if a token uses the NegRisk adapter.
func (tc *TradingClient) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	url := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, tokenID)

	var resp clobNegRiskResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}
	return resp.NegRisk, nil
}

// parseUSDC converts a micro-USDC string (e.g., "1000000") to USDC.
func parseUSDC(s string) decimal.Decimal {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, -6)
}

