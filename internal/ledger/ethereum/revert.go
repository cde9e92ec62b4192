package ethereum

import (
	"errors"
	"strings"

	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const revertPrefix = "execution reverted"

// reasonCodes maps fragments of the contract's revert messages to codes.
// Order matters: "not started" must be tested before "started".
var reasonCodes = []struct {
	fragment string
	code     ledger.Code
}{
	{"does not exist", ledger.CodeSessionNotFound},
	{"admin", ledger.CodeInvalidAdminSecret},
	{"not started", ledger.CodeSessionNotStarted},
	{"already started", ledger.CodeSessionAlreadyStarted},
	{"used previously", ledger.CodeTokenReused},
	{"token", ledger.CodeTokenInvalid},
	{"candidate", ledger.CodeInvalidCandidate},
	{"is over", ledger.CodeSessionExpired},
	{"ended", ledger.CodeSessionExpired},
	{"expired", ledger.CodeSessionExpired},
}

func codeForReason(reason string) ledger.Code {
	lower := strings.ToLower(reason)
	for _, rc := range reasonCodes {
		if strings.Contains(lower, rc.fragment) {
			return rc.code
		}
	}
	return ledger.CodeRejected
}

// revertReason extracts the contract's revert message from a node error.
// The second result is false when err is not a revert.
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if data, ok := de.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(data); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, revertPrefix)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimPrefix(msg[idx+len(revertPrefix):], ":")
	return strings.TrimSpace(reason), true
}

// classify turns a node or contract error into a ledger error. Reverts keep
// the contract's text verbatim.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if reason, ok := revertReason(err); ok {
		return ledger.NewError(codeForReason(reason), reason)
	}
	return ledger.Classify(err)
}
