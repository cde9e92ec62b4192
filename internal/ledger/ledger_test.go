package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCandidates(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		wantErr    bool
	}{
		{"ok", []string{"A", "B"}, false},
		{"one", []string{"A"}, true},
		{"nil", nil, true},
		{"empty name", []string{"A", ""}, true},
		{"duplicate", []string{"A", "B", "A"}, true},
		{"too long", []string{"A", strings.Repeat("x", MaxCandidateLen+1)}, true},
		{"exactly 32", []string{"A", strings.Repeat("x", MaxCandidateLen)}, false},
		{"bad utf8", []string{"A", string([]byte{0xff, 0xfe})}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCandidates(tt.candidates)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSessionView_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&SessionView{}).Expired(now), "zero end time never expires")
	assert.False(t, (&SessionView{EndTime: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&SessionView{EndTime: now}).Expired(now))
	assert.True(t, (&SessionView{EndTime: now.Add(-time.Second)}).Expired(now))
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("vote: %w", NewError(CodeTokenReused, "This token was used previously"))

	assert.ErrorIs(t, err, ErrTokenReused)
	assert.ErrorIs(t, err, ErrLedger)
	assert.NotErrorIs(t, err, ErrTokenInvalid)
	assert.NotErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, err.Error(), "This token was used previously")
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	reused := NewError(CodeTokenReused, "used")
	assert.Same(t, reused, Classify(reused))

	err := Classify(context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = Classify(errors.New("connection refused"))
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, FromContext(ctx))
	cancel()
	err := FromContext(ctx)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)

	assert.Len(t, a, 2+2*SecretSize)
	assert.True(t, strings.HasPrefix(a, "0x"))
	assert.NotEqual(t, a, b)

	many, err := NewSecrets(3)
	require.NoError(t, err)
	assert.Len(t, many, 3)
}

func TestFingerprint(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)

	fp, err := Fingerprint(secret)
	require.NoError(t, err)

	raw, err := DecodeSecret(secret)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(raw).Hex(), fp)
	assert.NotEqual(t, secret, fp)

	again, err := Fingerprint(secret)
	require.NoError(t, err)
	assert.Equal(t, fp, again)
}

func TestFingerprint_Malformed(t *testing.T) {
	for _, s := range []string{"", "zz", "0x1234", "deadbeef"} {
		_, err := Fingerprint(s)
		assert.Error(t, err, s)
	}
}
