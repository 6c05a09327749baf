package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yungbote/ghiblify-backend/internal/platform/evm"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

func siweMessage(addr, nonce string) string {
	return "ghiblify-it.xyz wants you to sign in with your Ethereum account:\n" +
		addr + "\n\n" +
		"Sign in to Ghiblify\n\n" +
		"URI: https://ghiblify-it.xyz\n" +
		"Version: 1\n" +
		"Chain ID: 8453\n" +
		fmt.Sprintf("Nonce: %s\n", nonce) +
		"Issued At: 2025-01-01T00:00:00Z"
}

func personalSign(t *testing.T, key *ecdsa.PrivateKey, msg string) string {
	t.Helper()
	sig, err := crypto.Sign(evm.MessageHash(msg).Bytes(), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig)
}

func newAuthForTest(t *testing.T, st store.Store, v SignatureVerifier, trust bool) AuthService {
	t.Helper()
	svc, err := NewAuthService(logger.Nop(), st, v, AuthConfig{JWTSecret: "test-secret", TrustSmartWallets: trust})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc
}

func TestVerifySIWE(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newAuthForTest(t, st, nil, false)

	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := svc.Nonce(ctx)
	if err != nil {
		t.Fatalf("Nonce: %v", err)
	}
	if len(nonce) != 32 {
		t.Fatalf("nonce length: want=32 got=%d", len(nonce))
	}
	msg := siweMessage(addr, nonce)
	req := VerifyRequest{Address: addr, Message: msg, Signature: personalSign(t, key, msg)}

	res, err := svc.Verify(ctx, req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.OK || res.Address != strings.ToLower(addr) || res.Credits != 0 {
		t.Fatalf("result: got=%+v", res)
	}
	if res.ExpiresIn != int(DefaultAccessTTL.Seconds()) {
		t.Fatalf("expires_in: want=%d got=%d", int(DefaultAccessTTL.Seconds()), res.ExpiresIn)
	}
	got, err := svc.AddressFromToken(res.Token)
	if err != nil {
		t.Fatalf("AddressFromToken: %v", err)
	}
	if got != strings.ToLower(addr) {
		t.Fatalf("token subject: want=%s got=%s", strings.ToLower(addr), got)
	}

	// nonces are single use
	_, err = svc.Verify(ctx, req)
	wantStatus(t, err, http.StatusUnprocessableEntity)
}

func TestVerifyRejects(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newAuthForTest(t, st, nil, false)
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	t.Run("bad address", func(t *testing.T) {
		_, err := svc.Verify(ctx, VerifyRequest{Address: "0x12", Message: "x", Signature: "0x"})
		wantStatus(t, err, http.StatusBadRequest)
	})
	t.Run("no nonce", func(t *testing.T) {
		msg := "ghiblify-it.xyz wants you to sign in with your Ethereum account:\n" + addr
		_, err := svc.Verify(ctx, VerifyRequest{Address: addr, Message: msg, Signature: personalSign(t, key, msg)})
		wantStatus(t, err, http.StatusUnprocessableEntity)
	})
	t.Run("address mismatch", func(t *testing.T) {
		nonce, _ := svc.Nonce(ctx)
		msg := siweMessage(bob, nonce)
		_, err := svc.Verify(ctx, VerifyRequest{Address: addr, Message: msg, Signature: personalSign(t, key, msg)})
		wantStatus(t, err, http.StatusUnprocessableEntity)
	})
	t.Run("wrong signer", func(t *testing.T) {
		nonce, _ := svc.Nonce(ctx)
		msg := siweMessage(addr, nonce)
		_, err := svc.Verify(ctx, VerifyRequest{Address: addr, Message: msg, Signature: personalSign(t, other, msg)})
		wantStatus(t, err, http.StatusUnauthorized)
	})
	t.Run("unknown nonce", func(t *testing.T) {
		msg := siweMessage(addr, "deadbeef")
		_, err := svc.Verify(ctx, VerifyRequest{Address: addr, Message: msg, Signature: personalSign(t, key, msg)})
		wantStatus(t, err, http.StatusUnprocessableEntity)
	})
	t.Run("tampered token", func(t *testing.T) {
		tok, _ := svc.IssueToken(addr)
		if _, err := svc.AddressFromToken(tok + "x"); err == nil {
			t.Fatalf("AddressFromToken: want error")
		}
		otherSvc := newAuthForTest(t, st, nil, false)
		if _, err := otherSvc.AddressFromToken(tok); err != nil {
			t.Fatalf("same secret: %v", err)
		}
	})
}

type fakeVerifier struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeVerifier) Verify(ctx context.Context, signer common.Address, message string, sig []byte) (bool, error) {
	f.calls++
	return f.ok, f.err
}

func wrappedSignature() string {
	return "0x" + strings.Repeat("ab", 96) + strings.Repeat("6492", 16)
}

func TestVerifySmartWallet(t *testing.T) {
	ctx := context.Background()
	addr := alice
	msg := siweMessage(addr, "walletnonce1")
	req := VerifyRequest{Address: addr, Message: msg, Signature: wrappedSignature()}

	t.Run("no verifier", func(t *testing.T) {
		svc := newAuthForTest(t, newTestStore(t), nil, false)
		_, err := svc.Verify(ctx, req)
		wantStatus(t, err, http.StatusUnauthorized)
	})
	t.Run("verified once", func(t *testing.T) {
		v := &fakeVerifier{ok: true}
		svc := newAuthForTest(t, newTestStore(t), v, false)
		if _, err := svc.Verify(ctx, req); err != nil {
			t.Fatalf("Verify: %v", err)
		}
		_, err := svc.Verify(ctx, req)
		wantStatus(t, err, http.StatusUnprocessableEntity)
		if v.calls != 2 {
			t.Fatalf("verifier calls: want=2 got=%d", v.calls)
		}
	})
	t.Run("invalid on chain", func(t *testing.T) {
		svc := newAuthForTest(t, newTestStore(t), &fakeVerifier{ok: false}, true)
		_, err := svc.Verify(ctx, req)
		wantStatus(t, err, http.StatusUnauthorized)
	})
	t.Run("trusted wrapped", func(t *testing.T) {
		svc := newAuthForTest(t, newTestStore(t), &fakeVerifier{err: evm.ErrUnsupportedWrapped}, true)
		if _, err := svc.Verify(ctx, req); err != nil {
			t.Fatalf("Verify: %v", err)
		}
	})
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	if _, err := NewAuthService(logger.Nop(), store.NewMemoryStore(logger.Nop()), nil, AuthConfig{}); err == nil {
		t.Fatalf("NewAuthService: want error without secret")
	}
}
