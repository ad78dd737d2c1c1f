package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/brojonat/distadmin/service/distributor"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

var (
	testProgramID = solanago.MustPublicKeyFromBase58("KdisqEcXbXKaTrBFqeDLhMmBvymLTwj9GmhDcdJyGat")
	testBase      = solanago.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	testMint      = solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

// fakeRPC is a minimal Solana JSON-RPC endpoint serving getAccountInfo from memory.
type fakeRPC struct {
	t        *testing.T
	mu       sync.Mutex
	owner    solanago.PublicKey
	accounts map[string][]byte
	methods  []string
}

func newFakeRPC(t *testing.T) (*fakeRPC, *httptest.Server) {
	f := &fakeRPC{t: t, owner: testProgramID, accounts: make(map[string][]byte)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRPC) put(version uint64, acct distributor.MerkleDistributor) {
	f.t.Helper()
	addr, err := distributor.DeriveAddress(testProgramID, testBase, testMint, version)
	require.NoError(f.t, err)
	acct.Version = version
	acct.Mint = testMint
	data, err := distributor.EncodeAccount(&acct)
	require.NoError(f.t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[addr.PublicKey.String()] = data
}

func (f *fakeRPC) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeRPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.methods = append(f.methods, req.Method)
	f.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "getAccountInfo":
		var address string
		_ = json.Unmarshal(req.Params[0], &address)
		f.mu.Lock()
		data, ok := f.accounts[address]
		f.mu.Unlock()

		result := map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": nil}
		if ok {
			result["value"] = map[string]interface{}{
				"lamports":   2039280,
				"owner":      f.owner.String(),
				"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
				"executable": false,
				"rentEpoch":  0,
				"space":      len(data),
			}
		}
		resp["result"] = result
	default:
		resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func createTestApp(stdout, stderr *bytes.Buffer) *cli.App {
	app := newApp()
	app.Writer = stdout
	app.ErrWriter = stderr
	return app
}

// runCLI runs the app against rpcURL with the targets preset.
func runCLI(t *testing.T, rpcURL string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("PUSHGATEWAY_URL", "")

	var stdout, stderr bytes.Buffer
	full := append([]string{
		"distadmin",
		"--rpc-url", rpcURL,
		"--program-id", testProgramID.String(),
		"--base", testBase.String(),
		"--mint", testMint.String(),
		"--max-attempts", "1",
	}, args...)
	err := createTestApp(&stdout, &stderr).Run(full)
	return stdout.String(), err
}

func outputLines(out string) []string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func writeKeypair(t *testing.T) (string, solanago.PrivateKey) {
	t.Helper()
	key := solanago.NewWallet().PrivateKey
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	raw, err := json.Marshal(values)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path, key
}

func writeTree(t *testing.T, dir, name string, version uint64) {
	t.Helper()
	doc := map[string]interface{}{
		"merkle_root":     make([]int, 32),
		"airdrop_version": version,
		"max_num_nodes":   2,
		"max_total_claim": 100,
		"tree_nodes":      []interface{}{},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
}

func TestOfflineSetAdmin_PrintsOneMessage(t *testing.T) {
	rpc, srv := newFakeRPC(t)
	admin := solanago.NewWallet().PublicKey()
	rpc.put(5, distributor.MerkleDistributor{Admin: admin})

	out, err := runCLI(t, srv.URL, "--bs58",
		"set-admin", "--from-version", "5", "--to-version", "5",
		"--new-admin", solanago.NewWallet().PublicKey().String())
	require.NoError(t, err)

	lines := outputLines(out)
	require.Len(t, lines, 1)
	raw, err := base58.Decode(lines[0])
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, []string{"getAccountInfo"}, rpc.calls())
}

func TestSetClawbackStartTs_AlreadySet(t *testing.T) {
	rpc, srv := newFakeRPC(t)
	keypair, key := writeKeypair(t)
	rpc.put(1, distributor.MerkleDistributor{Admin: key.PublicKey(), ClawbackStartTs: 1700000000})
	rpc.put(2, distributor.MerkleDistributor{Admin: key.PublicKey(), ClawbackStartTs: 1700000000})

	out, err := runCLI(t, srv.URL, "--keypair", keypair,
		"set-clawback-start-ts", "--from-version", "1", "--to-version", "2",
		"--clawback-start-ts", "1700000000")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"already set slot skip airdrop version 1",
		"already set slot skip airdrop version 2",
	}, outputLines(out))
	assert.Equal(t, []string{"getAccountInfo", "getAccountInfo"}, rpc.calls())
}

func TestDirectorySource_FileOrder(t *testing.T) {
	rpc, srv := newFakeRPC(t)
	admin := solanago.NewWallet().PublicKey()
	rpc.put(2, distributor.MerkleDistributor{Admin: admin})
	rpc.put(0, distributor.MerkleDistributor{Admin: admin})

	dir := t.TempDir()
	writeTree(t, dir, "a.json", 2)
	writeTree(t, dir, "b.json", 0)
	writeTree(t, dir, "c.json", 1)

	out, err := runCLI(t, srv.URL, "--bs58",
		"set-admin", "--merkle-tree-path", dir,
		"--new-admin", solanago.NewWallet().PublicKey().String())
	require.NoError(t, err, "a missing account is not a failure")

	lines := outputLines(out)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], "airdrop version 1 "), lines[2])
	assert.Contains(t, lines[2], "not found")
	assert.Len(t, rpc.calls(), 3)
}

func TestSetClawbackReceiver_AlreadySame(t *testing.T) {
	rpc, srv := newFakeRPC(t)
	keypair, key := writeKeypair(t)
	receiver := solanago.NewWallet().PublicKey()
	ata, err := distributor.ClawbackReceiverFor(receiver, testMint)
	require.NoError(t, err)
	rpc.put(3, distributor.MerkleDistributor{Admin: key.PublicKey(), ClawbackReceiver: ata})

	out, err := runCLI(t, srv.URL, "--keypair", keypair,
		"set-clawback-receiver", "--from-version", "3", "--to-version", "3",
		"--receiver", receiver.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"already the same skip airdrop version 3"}, outputLines(out))
}

func TestFatalErrorsBeforeNetwork(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	newAdmin := solanago.NewWallet().PublicKey().String()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "inverted range",
			args:    []string{"--bs58", "set-admin", "--from-version", "5", "--to-version", "3", "--new-admin", newAdmin},
			wantErr: "invalid version range",
		},
		{
			name:    "malformed tree file",
			args:    []string{"--bs58", "set-admin", "--merkle-tree-path", dir, "--new-admin", newAdmin},
			wantErr: "failed to read merkle tree file",
		},
		{
			name:    "both sources",
			args:    []string{"--bs58", "set-admin", "--merkle-tree-path", dir, "--from-version", "1", "--to-version", "2", "--new-admin", newAdmin},
			wantErr: "not both",
		},
		{
			name:    "no source",
			args:    []string{"--bs58", "set-admin", "--new-admin", newAdmin},
			wantErr: "is required",
		},
		{
			name:    "half a range",
			args:    []string{"--bs58", "set-admin", "--from-version", "1", "--new-admin", newAdmin},
			wantErr: "must be given together",
		},
		{
			name:    "unreadable keypair",
			args:    []string{"--keypair", filepath.Join(dir, "missing.json"), "set-admin", "--from-version", "1", "--to-version", "1", "--new-admin", newAdmin},
			wantErr: "failed to read keypair",
		},
		{
			name:    "invalid new admin",
			args:    []string{"--bs58", "set-admin", "--from-version", "1", "--to-version", "1", "--new-admin", "nope"},
			wantErr: "--new-admin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc, srv := newFakeRPC(t)
			_, err := runCLI(t, srv.URL, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, rpc.calls())
		})
	}
}

func TestForeignOwnerFailsRun(t *testing.T) {
	rpc, srv := newFakeRPC(t)
	rpc.owner = solanago.SystemProgramID
	rpc.put(7, distributor.MerkleDistributor{Admin: solanago.NewWallet().PublicKey()})

	out, err := runCLI(t, srv.URL, "--bs58",
		"set-clawback-start-ts", "--from-version", "7", "--to-version", "7",
		"--clawback-start-ts", "1")
	require.Error(t, err)
	assert.Equal(t, "1 of 1 versions failed", err.Error())

	lines := outputLines(out)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "airdrop version 7 "), lines[0])
}

func TestMissingTargets(t *testing.T) {
	t.Setenv("PROGRAM_ID", "")
	t.Setenv("BASE", "")
	t.Setenv("MINT", "")

	var stdout, stderr bytes.Buffer
	err := createTestApp(&stdout, &stderr).Run([]string{
		"distadmin", "--bs58", "set-admin", "--from-version", "1", "--to-version", "1",
		"--new-admin", solanago.NewWallet().PublicKey().String(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--program-id is required")
	assert.Contains(t, err.Error(), "--base is required")
	assert.Contains(t, err.Error(), "--mint is required")
}

func TestOutputJSON(t *testing.T) {
	records := []map[string]interface{}{
		{"version": 1, "outcome": "updated"},
		{"version": 2, "outcome": "skipped"},
	}

	var buf bytes.Buffer
	require.NoError(t, outputJSON(&buf, records, `.[] | select(.outcome == "updated") | .version`))
	assert.Equal(t, "1\n", buf.String())

	buf.Reset()
	require.NoError(t, outputJSON(&buf, records, ""))
	assert.Contains(t, buf.String(), `"outcome": "skipped"`)

	err := outputJSON(&buf, records, ".[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid jq expression")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("verbose").String())
}
