package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentTx struct {
	method string
	params []interface{}
	opts   *bind.TransactOpts
}

type fakeContract struct {
	callFn func(ctx context.Context, method string, params ...interface{}) ([]interface{}, error)
	sent   []sentTx
	sendFn func(method string) error
}

func (f *fakeContract) Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	if f.callFn == nil {
		*results = nil
		return nil
	}
	out, err := f.callFn(opts.Context, method, params...)
	if err != nil {
		return err
	}
	*results = out
	return nil
}

func (f *fakeContract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	if f.sendFn != nil {
		if err := f.sendFn(method); err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, sentTx{method: method, params: params, opts: opts})
	return types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.sent)), Gas: opts.GasLimit}), nil
}

type dataErr struct {
	msg  string
	data string
}

func (e *dataErr) Error() string          { return e.msg }
func (e *dataErr) ErrorData() interface{} { return e.data }

func newTestGateway(t *testing.T, c *fakeContract, status uint64) *Gateway {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	g := newGateway(c, key, big.NewInt(1337), Config{CallTimeout: time.Second}, logging.NewNop())
	g.waitMined = func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return &types.Receipt{Status: status, TxHash: tx.Hash()}, nil
	}
	return g
}

func revertData(t *testing.T, reason string) string {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func TestCreateSession_SendsHashedSecret(t *testing.T) {
	c := &fakeContract{}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)
	end := time.Now().Add(24 * time.Hour)

	res, err := g.CreateSession(context.Background(), []string{"A", "B"}, end)
	require.NoError(t, err)
	require.Len(t, c.sent, 1)

	tx := c.sent[0]
	assert.Equal(t, "createVoting", tx.method)
	assert.Equal(t, uint64(DefaultGasLimit), tx.opts.GasLimit)
	assert.Equal(t, common.HexToHash(res.SessionID), tx.params[0])
	assert.Equal(t, common.HexToHash(res.AdminSecretHash), tx.params[1])
	assert.NotEqual(t, common.HexToHash(res.AdminSecret), tx.params[1])
	assert.Equal(t, [][32]byte{toBytes32("A"), toBytes32("B")}, tx.params[2])
	assert.Equal(t, big.NewInt(end.UnixMilli()), tx.params[3])
	assert.NotEmpty(t, res.TxRef)
}

func TestCreateSession_InvalidCandidatesNeverSent(t *testing.T) {
	c := &fakeContract{}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)

	_, err := g.CreateSession(context.Background(), []string{"only"}, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ledger.ErrLedger)
	assert.Empty(t, c.sent)
}

func TestIssueTokens_SendsFingerprints(t *testing.T) {
	c := &fakeContract{}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)
	secret, _ := ledger.NewSecret()

	tokens, err := g.IssueTokens(context.Background(), "0x01", secret, 2)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	require.Len(t, c.sent, 1)

	hashes := c.sent[0].params[2].([][32]byte)
	for i, tok := range tokens {
		fp, err := ledger.Fingerprint(tok)
		require.NoError(t, err)
		assert.Equal(t, [32]byte(common.HexToHash(fp)), hashes[i])
	}
}

func TestCastVote_RevertIsClassifiedVerbatim(t *testing.T) {
	c := &fakeContract{
		callFn: func(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
			return nil, errors.New("execution reverted: This token was used previously")
		},
	}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)
	token, _ := ledger.NewSecret()

	_, err := g.CastVote(context.Background(), "0x01", "A", token)
	require.ErrorIs(t, err, ledger.ErrTokenReused)

	var le *ledger.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "This token was used previously", le.Reason)
	assert.Empty(t, c.sent, "reverting call must not be sent")
}

func TestStartSession_RevertFromErrorData(t *testing.T) {
	c := &fakeContract{
		callFn: func(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
			return nil, &dataErr{msg: "execution reverted", data: revertData(t, "Voting has already started")}
		},
	}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)

	err := g.StartSession(context.Background(), "0x01", "0x02")
	assert.ErrorIs(t, err, ledger.ErrSessionAlreadyStarted)
	assert.Contains(t, err.Error(), "Voting has already started")
}

func TestTransact_FailedReceiptIsRejected(t *testing.T) {
	c := &fakeContract{}
	g := newTestGateway(t, c, types.ReceiptStatusFailed)

	err := g.StartSession(context.Background(), "0x01", "0x02")
	assert.ErrorIs(t, err, ledger.NewError(ledger.CodeRejected, ""))
}

func TestTransact_SendFailureIsUnavailable(t *testing.T) {
	c := &fakeContract{sendFn: func(string) error { return errors.New("connection reset") }}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)

	err := g.StartSession(context.Background(), "0x01", "0x02")
	assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
}

func TestCall_TimeoutIsUnavailable(t *testing.T) {
	c := &fakeContract{
		callFn: func(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)
	g.timeout = 10 * time.Millisecond

	_, err := g.Tally(context.Background(), "0x01", "A")
	assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionView(t *testing.T) {
	end := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	c := &fakeContract{
		callFn: func(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
			switch method {
			case "votingExists", "votingStarted":
				return []interface{}{true}, nil
			case "votersTotal":
				return []interface{}{big.NewInt(60)}, nil
			case "alreadyVoted":
				return []interface{}{big.NewInt(4)}, nil
			case "endTime":
				return []interface{}{big.NewInt(end.UnixMilli())}, nil
			}
			return nil, errors.New("unexpected " + method)
		},
	}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)

	v, err := g.SessionView(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Equal(t, &ledger.SessionView{
		Exists: true, Started: true, VotersTotal: 60, VotesCast: 4, EndTime: time.UnixMilli(end.UnixMilli()),
	}, v)
}

func TestSessionView_Missing(t *testing.T) {
	c := &fakeContract{
		callFn: func(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
			return []interface{}{false}, nil
		},
	}
	g := newTestGateway(t, c, types.ReceiptStatusSuccessful)

	v, err := g.SessionView(context.Background(), "0x01")
	require.NoError(t, err)
	assert.False(t, v.Exists)
}

func TestCodeForReason(t *testing.T) {
	tests := map[string]ledger.Code{
		"Voting does not exist":          ledger.CodeSessionNotFound,
		"Invalid admin token":            ledger.CodeInvalidAdminSecret,
		"Voting has not started yet":     ledger.CodeSessionNotStarted,
		"Voting has already started":     ledger.CodeSessionAlreadyStarted,
		"This token was used previously": ledger.CodeTokenReused,
		"Invalid token":                  ledger.CodeTokenInvalid,
		"Invalid candidate":              ledger.CodeInvalidCandidate,
		"Voting is over":                 ledger.CodeSessionExpired,
		"out of gas":                     ledger.CodeRejected,
	}
	for reason, want := range tests {
		assert.Equal(t, want, codeForReason(reason), reason)
	}
}

func TestPing_NotConnected(t *testing.T) {
	g := newTestGateway(t, &fakeContract{}, types.ReceiptStatusSuccessful)
	assert.ErrorIs(t, g.Ping(context.Background()), ledger.ErrLedgerUnavailable)
}
