package reconcile

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/brojonat/distadmin/service/distributor"
	"github.com/brojonat/distadmin/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

var (
	testProgramID = solanago.MustPublicKeyFromBase58("KdisqEcXbXKaTrBFqeDLhMmBvymLTwj9GmhDcdJyGat")
	testBase      = solanago.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	testMint      = solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func addressOf(t *testing.T, version uint64) solanago.PublicKey {
	t.Helper()
	addr, err := distributor.DeriveAddress(testProgramID, testBase, testMint, version)
	require.NoError(t, err)
	return addr.PublicKey
}

// fakeReader serves accounts from memory. Queued errors are returned
// (one per read) before the stored account.
type fakeReader struct {
	mu       sync.Mutex
	accounts map[solanago.PublicKey]*distributor.MerkleDistributor
	errs     []error
	reads    int
}

func newFakeReader() *fakeReader {
	return &fakeReader{accounts: make(map[solanago.PublicKey]*distributor.MerkleDistributor)}
}

func (f *fakeReader) put(t *testing.T, version uint64, acct distributor.MerkleDistributor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct.Version = version
	f.accounts[addressOf(t, version)] = &acct
}

func (f *fakeReader) ReadDistributor(ctx context.Context, address solanago.PublicKey) (*distributor.MerkleDistributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	acct, ok := f.accounts[address]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	clone := *acct
	return &clone, nil
}

func (f *fakeReader) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// fakeDispatcher records requests. apply runs after a successful dispatch,
// the way the on-chain program would mutate state; onFail runs after a queued error.
type fakeDispatcher struct {
	mu       sync.Mutex
	mode     solana.DeliveryMode
	errs     []error
	requests []solana.DispatchRequest
	apply    func(req solana.DispatchRequest)
	onFail   func(req solana.DispatchRequest)
}

func (f *fakeDispatcher) Mode() solana.DeliveryMode { return f.mode }

func (f *fakeDispatcher) Dispatch(ctx context.Context, req solana.DispatchRequest) (*solana.DispatchResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	apply, onFail := f.apply, f.onFail
	f.mu.Unlock()

	if err != nil {
		if onFail != nil {
			onFail(req)
		}
		return nil, err
	}
	if apply != nil {
		apply(req)
	}
	if f.mode == solana.ModeOffline {
		return &solana.DispatchResult{Message: "offline-message"}, nil
	}
	var sig solanago.Signature
	sig[0] = byte(req.Version + 1)
	return &solana.DispatchResult{Signature: sig}, nil
}

func (f *fakeDispatcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeRecorder captures everything a Recorder receives.
type fakeRecorder struct {
	mu       sync.Mutex
	runs     []Run
	results  []Result
	finished []*Report
	err      error
}

func (f *fakeRecorder) StartRun(ctx context.Context, run Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

func (f *fakeRecorder) RecordOutcome(ctx context.Context, result Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return f.err
}

func (f *fakeRecorder) FinishRun(ctx context.Context, report *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, report)
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for a reconciler goroutine and a test reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := strings.TrimRight(b.buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
