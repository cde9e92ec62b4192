// Package ethereum implements ledger.Gateway against the VotingPlatform
// contract through a go-ethereum JSON-RPC client.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

//go:embed VotingPlatform.abi.json
var contractABI string

// DefaultGasLimit is the gas attached to every transaction.
const DefaultGasLimit = 4_500_000

type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	GasLimit        uint64
	CallTimeout     time.Duration
}

// contract is the part of *bind.BoundContract the gateway uses.
type contract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

type waitMinedFunc func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

type Gateway struct {
	client    *ethclient.Client
	contract  contract
	waitMined waitMinedFunc
	key       *ecdsa.PrivateKey
	from      common.Address
	chainID   *big.Int
	gasLimit  uint64
	timeout   time.Duration
	logger    logging.Logger
}

var _ ledger.Gateway = (*Gateway)(nil)

// Dial connects to the node at cfg.RPCURL and binds the contract.
func Dial(ctx context.Context, cfg Config, logger logging.Logger) (*Gateway, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, ledger.Unavailable(err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			client.Close()
			return nil, ledger.Unavailable(err)
		}
	}

	addr := common.HexToAddress(cfg.ContractAddress)
	bound := bind.NewBoundContract(addr, parsed, client, client, client)

	g := newGateway(bound, key, chainID, cfg, logger)
	g.client = client
	g.waitMined = func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return bind.WaitMined(ctx, client, tx)
	}
	return g, nil
}

func newGateway(c contract, key *ecdsa.PrivateKey, chainID *big.Int, cfg Config, logger logging.Logger) *Gateway {
	g := &Gateway{
		contract: c,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		gasLimit: cfg.GasLimit,
		timeout:  cfg.CallTimeout,
		logger:   logger.With("module", "ledger.ethereum"),
	}
	if g.gasLimit == 0 {
		g.gasLimit = DefaultGasLimit
	}
	if g.timeout == 0 {
		g.timeout = 30 * time.Second
	}
	return g
}

func (g *Gateway) Close() error {
	if g.client != nil {
		g.client.Close()
	}
	return nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if g.client == nil {
		return ledger.Unavailable(errors.New("not connected"))
	}
	if _, err := g.client.BlockNumber(ctx); err != nil {
		return ledger.Classify(err)
	}
	return nil
}

func (g *Gateway) CreateSession(ctx context.Context, candidates []string, endTime time.Time) (*ledger.CreateResult, error) {
	if err := ledger.ValidateCandidates(candidates); err != nil {
		return nil, ledger.NewError(ledger.CodeRejected, err.Error())
	}
	id, err := ledger.NewSecret()
	if err != nil {
		return nil, err
	}
	secret, err := ledger.NewSecret()
	if err != nil {
		return nil, err
	}
	secretHash, err := ledger.Fingerprint(secret)
	if err != nil {
		return nil, err
	}

	names := make([][32]byte, len(candidates))
	for i, c := range candidates {
		names[i] = toBytes32(c)
	}

	tx, err := g.transact(ctx, "createVoting",
		common.HexToHash(id), common.HexToHash(secretHash), names, big.NewInt(endTime.UnixMilli()))
	if err != nil {
		return nil, err
	}
	return &ledger.CreateResult{
		SessionID:       id,
		AdminSecret:     secret,
		AdminSecretHash: secretHash,
		TxRef:           tx,
	}, nil
}

func (g *Gateway) IssueTokens(ctx context.Context, sessionID, adminSecret string, count int) ([]string, error) {
	if count <= 0 {
		return nil, ledger.NewError(ledger.CodeRejected, "token count must be positive")
	}
	tokens, err := ledger.NewSecrets(count)
	if err != nil {
		return nil, err
	}
	hashes := make([][32]byte, len(tokens))
	for i, tok := range tokens {
		fp, err := ledger.Fingerprint(tok)
		if err != nil {
			return nil, err
		}
		hashes[i] = common.HexToHash(fp)
	}

	if _, err := g.transact(ctx, "addTokens",
		common.HexToHash(sessionID), common.HexToHash(adminSecret), hashes); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (g *Gateway) StartSession(ctx context.Context, sessionID, adminSecret string) error {
	_, err := g.transact(ctx, "startVoting", common.HexToHash(sessionID), common.HexToHash(adminSecret))
	return err
}

func (g *Gateway) CastVote(ctx context.Context, sessionID, candidate, token string) (*ledger.Receipt, error) {
	if _, err := ledger.DecodeSecret(token); err != nil {
		return nil, ledger.NewError(ledger.CodeTokenInvalid, err.Error())
	}
	if len(candidate) == 0 || len(candidate) > ledger.MaxCandidateLen {
		return nil, ledger.NewError(ledger.CodeInvalidCandidate, "candidate does not fit the ballot")
	}
	tx, err := g.transact(ctx, "vote",
		common.HexToHash(sessionID), toBytes32(candidate), common.HexToHash(token))
	if err != nil {
		return nil, err
	}
	return &ledger.Receipt{TxRef: tx}, nil
}

func (g *Gateway) SessionView(ctx context.Context, sessionID string) (*ledger.SessionView, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	id := common.HexToHash(sessionID)
	exists, err := g.callBool(ctx, "votingExists", id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &ledger.SessionView{}, nil
	}

	v := &ledger.SessionView{Exists: true}
	if v.Started, err = g.callBool(ctx, "votingStarted", id); err != nil {
		return nil, err
	}
	if v.VotersTotal, err = g.callUint(ctx, "votersTotal", id); err != nil {
		return nil, err
	}
	if v.VotesCast, err = g.callUint(ctx, "alreadyVoted", id); err != nil {
		return nil, err
	}
	endMs, err := g.callUint(ctx, "endTime", id)
	if err != nil {
		return nil, err
	}
	v.EndTime = time.UnixMilli(int64(endMs))
	return v, nil
}

func (g *Gateway) Tally(ctx context.Context, sessionID, candidate string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.callUint(ctx, "totalVotesFor", common.HexToHash(sessionID), toBytes32(candidate))
}

func (g *Gateway) ValidAdminSecret(ctx context.Context, sessionID, adminSecret string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.callBool(ctx, "validAdminToken", common.HexToHash(sessionID), common.HexToHash(adminSecret))
}

// transact simulates the call first so reverts come back with the
// contract's reason, then sends it and waits for the receipt.
func (g *Gateway) transact(ctx context.Context, method string, params ...interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx, From: g.from}, &out, method, params...); err != nil {
		return "", classify(err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(g.key, g.chainID)
	if err != nil {
		return "", fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = g.gasLimit

	tx, err := g.contract.Transact(opts, method, params...)
	if err != nil {
		return "", classify(err)
	}
	g.logger.Debug(ctx, "ledger transaction sent", "method", method, "tx", tx.Hash().Hex())

	receipt, err := g.waitMined(ctx, tx)
	if err != nil {
		return "", ledger.Classify(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", ledger.NewError(ledger.CodeRejected, "transaction "+tx.Hash().Hex()+" reverted")
	}
	return tx.Hash().Hex(), nil
}

func (g *Gateway) call(ctx context.Context, method string, params ...interface{}) (interface{}, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx, From: g.from}, &out, method, params...); err != nil {
		return nil, classify(err)
	}
	if len(out) != 1 {
		return nil, ledger.NewError(ledger.CodeRejected, fmt.Sprintf("%s: unexpected result count %d", method, len(out)))
	}
	return out[0], nil
}

func (g *Gateway) callBool(ctx context.Context, method string, params ...interface{}) (bool, error) {
	v, err := g.call(ctx, method, params...)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, ledger.NewError(ledger.CodeRejected, fmt.Sprintf("%s: unexpected result %T", method, v))
	}
	return b, nil
}

func (g *Gateway) callUint(ctx context.Context, method string, params ...interface{}) (uint64, error) {
	v, err := g.call(ctx, method, params...)
	if err != nil {
		return 0, err
	}
	n, ok := v.(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, ledger.NewError(ledger.CodeRejected, fmt.Sprintf("%s: unexpected result %v", method, v))
	}
	return n.Uint64(), nil
}

// toBytes32 right-pads a candidate name, the way web3's utf8ToHex value is
// stored in a bytes32 slot.
func toBytes32(s string) [32]byte {
	var b [32]byte
	copy(b[:], s)
	return b
}
