package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/distadmin/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"
	"github.com/mr-tron/base58"
)

// BroadcastConfig configures a BroadcastDispatcher.
type BroadcastConfig struct {
	// Primary serves blockhash reads and confirmation polling.
	Primary *Client
	// Send receives submissions for dual-endpoint operations. Nil falls back to Primary.
	Send *Client
	// Signer pays fees and signs as admin.
	Signer solana.PrivateKey

	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	Clock   clockwork.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// BroadcastDispatcher signs instruction lists and submits them to the cluster.
type BroadcastDispatcher struct {
	primary      *Client
	send         *Client
	signer       solana.PrivateKey
	timeout      time.Duration
	pollInterval time.Duration
	clock        clockwork.Clock
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewBroadcastDispatcher creates a dispatcher that signs with cfg.Signer.
func NewBroadcastDispatcher(cfg BroadcastConfig) *BroadcastDispatcher {
	if cfg.Send == nil {
		cfg.Send = cfg.Primary
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 90 * time.Second
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = time.Second
	}
	return &BroadcastDispatcher{
		primary:      cfg.Primary,
		send:         cfg.Send,
		signer:       cfg.Signer,
		timeout:      cfg.ConfirmTimeout,
		pollInterval: cfg.ConfirmPollInterval,
		clock:        cfg.Clock,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

func (d *BroadcastDispatcher) Mode() DeliveryMode { return ModeBroadcast }

// Signer returns the public key of the signing keypair.
func (d *BroadcastDispatcher) Signer() solana.PublicKey {
	return d.signer.PublicKey()
}

// Dispatch fetches a blockhash from the primary endpoint, signs with the fee payer
// keypair and submits. Dual-endpoint requests go out through the send endpoint.
func (d *BroadcastDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	blockhash, err := d.primary.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	payer := d.signer.PublicKey()
	tx, err := solana.NewTransaction(req.Instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &d.signer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	sender := d.primary
	if req.DualEndpoint {
		sender = d.send
	}

	sig, err := sender.Send(ctx, tx)
	if err != nil {
		return nil, err
	}

	d.logger.DebugContext(ctx, "submitted transaction",
		"version", req.Version,
		"signature", sig.String(),
		"endpoint", sender.Endpoint(),
	)

	result := &DispatchResult{Signature: sig}
	if !req.WaitForConfirmation {
		return result, nil
	}

	if err := d.awaitConfirmation(ctx, sig); err != nil {
		return nil, fmt.Errorf("signature %s: %w", sig, err)
	}
	result.Confirmed = true
	return result, nil
}

// awaitConfirmation polls the primary endpoint until sig reaches confirmed
// commitment, fails on-chain, or the timeout elapses.
func (d *BroadcastDispatcher) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	start := d.clock.Now()
	deadline := start.Add(d.timeout)
	status := "timeout"
	defer func() {
		if d.metrics != nil {
			d.metrics.RecordConfirmationWait(status, d.clock.Since(start).Seconds())
		}
	}()

	for {
		st, err := d.primary.SignatureStatus(ctx, sig)
		if err != nil {
			d.logger.WarnContext(ctx, "failed to poll signature status",
				"signature", sig.String(),
				"error", err,
			)
		} else if st != nil {
			if st.Err != nil {
				status = "failed"
				return fmt.Errorf("%w: %v", ErrTransactionFailed, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				status = "confirmed"
				return nil
			}
		}

		if !d.clock.Now().Before(deadline) {
			return ErrConfirmationTimeout
		}

		select {
		case <-ctx.Done():
			status = "canceled"
			return ctx.Err()
		case <-d.clock.After(d.pollInterval):
		}
	}
}

// OfflineDispatcher serializes unsigned messages for multisig signing.
// It performs no network I/O.
type OfflineDispatcher struct{}

// NewOfflineDispatcher creates a dispatcher that only encodes messages.
func NewOfflineDispatcher() *OfflineDispatcher {
	return &OfflineDispatcher{}
}

func (d *OfflineDispatcher) Mode() DeliveryMode { return ModeOffline }

// Dispatch builds a legacy message with the on-chain admin as fee payer and
// an empty blockhash, and returns it base-58 encoded.
func (d *OfflineDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	encoded, err := EncodeMessage(req.Instructions, req.Admin)
	if err != nil {
		return nil, err
	}
	return &DispatchResult{Message: encoded}, nil
}

// EncodeMessage serializes an unsigned message and encodes it as base-58.
func EncodeMessage(instructions []solana.Instruction, feePayer solana.PublicKey) (string, error) {
	tx, err := solana.NewTransaction(instructions, solana.Hash{}, solana.TransactionPayer(feePayer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	data, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return base58.Encode(data), nil
}
