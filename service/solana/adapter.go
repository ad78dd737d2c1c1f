package solana

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/distadmin/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// realRPCClient adapts the actual solana-go RPC client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client   *rpc.Client
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	endpoint string
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// requestsPerSecond <= 0 disables client-side rate limiting.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string, requestsPerSecond float64, m *metrics.Metrics) RPCClient {
	r := &realRPCClient{
		client:   rpc.New(rpcURL),
		metrics:  m,
		endpoint: EndpointLabel(rpcURL),
	}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return r
}

func (r *realRPCClient) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	start := time.Now()
	err := r.limiter.Wait(ctx)
	if r.metrics != nil {
		r.metrics.RecordRateLimitWait(r.endpoint, time.Since(start).Seconds())
	}
	return err
}

func (r *realRPCClient) GetAccountInfo(
	ctx context.Context,
	account solana.PublicKey,
	opts *rpc.GetAccountInfoOpts,
) (*rpc.GetAccountInfoResult, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.client.GetAccountInfoWithOpts(ctx, account, opts)
}

func (r *realRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.client.GetLatestBlockhash(ctx, commitment)
}

func (r *realRPCClient) SendTransaction(
	ctx context.Context,
	tx *solana.Transaction,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	if err := r.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	return r.client.SendTransactionWithOpts(ctx, tx, opts)
}

func (r *realRPCClient) GetSignatureStatuses(
	ctx context.Context,
	searchTransactionHistory bool,
	signatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.client.GetSignatureStatuses(ctx, searchTransactionHistory, signatures...)
}

// EndpointLabel extracts a short identifier from an RPC URL for metrics labeling
// so API keys embedded in URLs never reach label values.
// Examples:
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
func EndpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	host := parsed.Hostname()

	for _, provider := range []string{"helius", "quiknode", "alchemy", "triton", "rpcpool"} {
		if strings.Contains(host, provider) {
			return provider
		}
	}
	if strings.Contains(host, "quicknode") {
		return "quiknode"
	}
	for _, cluster := range []string{"mainnet", "devnet", "testnet"} {
		if strings.Contains(host, cluster) {
			return cluster
		}
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "localnet"
	}
	return host
}
