package solana

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/distadmin/service/distributor"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, primary, send *mockRPCClient, signer solana.PrivateKey) *BroadcastDispatcher {
	t.Helper()
	cfg := BroadcastConfig{
		Primary:             newTestClient(primary, "primary"),
		Signer:              signer,
		ConfirmTimeout:      time.Second,
		ConfirmPollInterval: time.Millisecond,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if send != nil {
		cfg.Send = newTestClient(send, "send")
	}
	return NewBroadcastDispatcher(cfg)
}

func setAdminRequest(signer, newAdmin solana.PublicKey) DispatchRequest {
	distributorKey := solana.NewWallet().PublicKey()
	return DispatchRequest{
		Version: 1,
		Instructions: []solana.Instruction{
			distributor.NewSetAdminInstruction(testProgramID, distributorKey, signer, newAdmin),
		},
		Admin: signer,
	}
}

func TestBroadcastDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()
	signer := solana.NewWallet().PrivateKey
	newAdmin := solana.NewWallet().PublicKey()

	t.Run("single endpoint submits via primary", func(t *testing.T) {
		primary := &mockRPCClient{}
		send := &mockRPCClient{}
		d := newTestDispatcher(t, primary, send, signer)

		res, err := d.Dispatch(ctx, setAdminRequest(signer.PublicKey(), newAdmin))
		require.NoError(t, err)
		assert.False(t, res.Signature.IsZero())
		assert.False(t, res.Confirmed)
		assert.Equal(t, 1, primary.sentCount())
		assert.Equal(t, 0, send.sentCount())

		tx := primary.sent[0]
		assert.Equal(t, signer.PublicKey(), tx.Message.AccountKeys[0], "signer is fee payer")
		require.NoError(t, tx.VerifySignatures())
	})

	t.Run("dual endpoint submits via send endpoint", func(t *testing.T) {
		primary := &mockRPCClient{}
		send := &mockRPCClient{}
		d := newTestDispatcher(t, primary, send, signer)

		req := setAdminRequest(signer.PublicKey(), newAdmin)
		req.DualEndpoint = true
		_, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 0, primary.sentCount())
		assert.Equal(t, 1, send.sentCount())
	})

	t.Run("dual endpoint without send client falls back to primary", func(t *testing.T) {
		primary := &mockRPCClient{}
		d := newTestDispatcher(t, primary, nil, signer)

		req := setAdminRequest(signer.PublicKey(), newAdmin)
		req.DualEndpoint = true
		_, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, primary.sentCount())
	})

	t.Run("authority that is not the signer fails to sign", func(t *testing.T) {
		primary := &mockRPCClient{}
		d := newTestDispatcher(t, primary, nil, signer)

		other := solana.NewWallet().PublicKey()
		_, err := d.Dispatch(ctx, setAdminRequest(other, newAdmin))
		assert.ErrorIs(t, err, ErrSigning)
		assert.Equal(t, 0, primary.sentCount())
	})

	t.Run("blockhash failure is returned", func(t *testing.T) {
		primary := &mockRPCClient{blockhashErr: assert.AnError}
		d := newTestDispatcher(t, primary, nil, signer)

		_, err := d.Dispatch(ctx, setAdminRequest(signer.PublicKey(), newAdmin))
		assert.ErrorIs(t, err, assert.AnError)
		assert.NotErrorIs(t, err, ErrSigning)
	})

	t.Run("send failure is returned", func(t *testing.T) {
		primary := &mockRPCClient{sendErr: assert.AnError}
		d := newTestDispatcher(t, primary, nil, signer)

		_, err := d.Dispatch(ctx, setAdminRequest(signer.PublicKey(), newAdmin))
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestBroadcastDispatcher_WaitForConfirmation(t *testing.T) {
	ctx := context.Background()
	signer := solana.NewWallet().PrivateKey
	newAdmin := solana.NewWallet().PublicKey()

	waitRequest := func() DispatchRequest {
		req := setAdminRequest(signer.PublicKey(), newAdmin)
		req.WaitForConfirmation = true
		return req
	}

	t.Run("confirmed after pending polls", func(t *testing.T) {
		primary := &mockRPCClient{
			statuses: []*rpc.SignatureStatusesResult{
				nil,
				{ConfirmationStatus: rpc.ConfirmationStatusProcessed},
				{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
			},
		}
		d := newTestDispatcher(t, primary, nil, signer)

		res, err := d.Dispatch(ctx, waitRequest())
		require.NoError(t, err)
		assert.True(t, res.Confirmed)
		assert.Equal(t, 3, primary.polls)
	})

	t.Run("finalized counts as confirmed", func(t *testing.T) {
		primary := &mockRPCClient{
			statuses: []*rpc.SignatureStatusesResult{
				{ConfirmationStatus: rpc.ConfirmationStatusFinalized},
			},
		}
		d := newTestDispatcher(t, primary, nil, signer)

		res, err := d.Dispatch(ctx, waitRequest())
		require.NoError(t, err)
		assert.True(t, res.Confirmed)
	})

	t.Run("on-chain failure", func(t *testing.T) {
		primary := &mockRPCClient{
			statuses: []*rpc.SignatureStatusesResult{
				{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
			},
		}
		d := newTestDispatcher(t, primary, nil, signer)

		_, err := d.Dispatch(ctx, waitRequest())
		assert.ErrorIs(t, err, ErrTransactionFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		primary := &mockRPCClient{}
		d := NewBroadcastDispatcher(BroadcastConfig{
			Primary:             newTestClient(primary, "primary"),
			Signer:              signer,
			ConfirmTimeout:      time.Nanosecond,
			ConfirmPollInterval: time.Millisecond,
			Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		})

		_, err := d.Dispatch(ctx, waitRequest())
		assert.ErrorIs(t, err, ErrConfirmationTimeout)
	})

	t.Run("context cancellation stops polling", func(t *testing.T) {
		primary := &mockRPCClient{}
		d := NewBroadcastDispatcher(BroadcastConfig{
			Primary:             newTestClient(primary, "primary"),
			Signer:              signer,
			ConfirmTimeout:      time.Hour,
			ConfirmPollInterval: time.Hour,
			Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		})

		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := d.Dispatch(cctx, waitRequest())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOfflineDispatcher(t *testing.T) {
	admin := solana.NewWallet().PublicKey()
	newAdmin := solana.NewWallet().PublicKey()
	distributorKey := solana.NewWallet().PublicKey()

	d := NewOfflineDispatcher()
	assert.Equal(t, ModeOffline, d.Mode())

	res, err := d.Dispatch(context.Background(), DispatchRequest{
		Version: 5,
		Instructions: []solana.Instruction{
			distributor.NewSetAdminInstruction(testProgramID, distributorKey, admin, newAdmin),
		},
		Admin: admin,
	})
	require.NoError(t, err)
	assert.True(t, res.Signature.IsZero())
	require.NotEmpty(t, res.Message)

	raw, err := base58.Decode(res.Message)
	require.NoError(t, err)

	var msg solana.Message
	require.NoError(t, msg.UnmarshalWithDecoder(bin.NewBinDecoder(raw)))
	assert.Equal(t, admin, msg.AccountKeys[0], "on-chain admin is fee payer")
	assert.Equal(t, uint8(1), msg.Header.NumRequiredSignatures)
	assert.True(t, msg.RecentBlockhash.IsZero())
	assert.Len(t, msg.Instructions, 1)
}

func TestEncodeMessage_Deterministic(t *testing.T) {
	admin := solana.NewWallet().PublicKey()
	ix := distributor.NewSetClawbackStartTsInstruction(testProgramID, solana.NewWallet().PublicKey(), admin, 1700000000)

	first, err := EncodeMessage([]solana.Instruction{ix}, admin)
	require.NoError(t, err)
	second, err := EncodeMessage([]solana.Instruction{ix}, admin)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
