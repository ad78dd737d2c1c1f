package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/distadmin/service/distributor"
	"github.com/brojonat/distadmin/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetAccountInfo(
		ctx context.Context,
		account solana.PublicKey,
		opts *rpc.GetAccountInfoOpts,
	) (*rpc.GetAccountInfoResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransaction(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// Client wraps one RPC endpoint with distributor-specific reads and writes.
type Client struct {
	rpc       RPCClient
	programID solana.PublicKey
	logger    *slog.Logger
	metrics   *metrics.Metrics
	endpoint  string // RPC endpoint identifier for metrics (e.g., "mainnet", "helius")
}

// NewClient creates a new Solana client.
// Accounts read through it must be owned by programID.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, programID solana.PublicKey, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:       rpcClient,
		programID: programID,
		logger:    logger,
		metrics:   m,
		endpoint:  endpoint,
	}
}

// Endpoint returns the endpoint label used for metrics and logs.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) record(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// ReadDistributor fetches and decodes the distributor account at address.
// Returns ErrAccountNotFound if nothing is stored there.
func (c *Client) ReadDistributor(ctx context.Context, address solana.PublicKey) (*distributor.MerkleDistributor, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	c.record("GetAccountInfo", start, err)

	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (out == nil || out.Value == nil)) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}

	if !out.Value.Owner.Equals(c.programID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", ErrUnexpectedOwner, address, out.Value.Owner)
	}

	data := out.Value.Data.GetBinary()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrAccountNotFound, address)
	}

	acct, err := distributor.DecodeAccount(data)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", address, err)
	}

	c.logger.DebugContext(ctx, "read distributor account",
		"address", address.String(),
		"version", acct.Version,
		"admin", acct.Admin.String(),
	)
	return acct, nil
}

// LatestBlockhash returns a recent blockhash at confirmed commitment.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	c.record("GetLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

// Send submits a signed transaction with preflight at confirmed commitment.
func (c *Client) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransaction(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	c.record("SendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction via %s: %w", c.endpoint, err)
	}
	return sig, nil
}

// SignatureStatus returns the status of sig, or nil if the cluster has not seen it yet.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	c.record("GetSignatureStatuses", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}
