package store

import (
	"fmt"
	"strings"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
)

const CeloLastBlockKey = "celo_last_processed_block"

func UserKey(address string) string { return "user:" + address }

func NonceKey(nonce string) string { return "nonces:" + nonce }

func UsedNonceKey(nonce string) string { return "nonces:used:" + nonce }

func HistoryKey(method payments.Method, address string) string {
	return fmt.Sprintf("%s_history:%s", method, address)
}

func StripeSessionKey(sessionID string) string { return "credited:session:" + sessionID }

func CoinbaseChargeKey(chargeID string) string { return "coinbase_processed:" + chargeID }

func CeloTxKey(chainID int64, txHash string) string {
	return fmt.Sprintf("processed_tx:%d:%s", chainID, strings.ToLower(txHash))
}

func BasePayKey(paymentID string) string { return "base_pay_processed:" + paymentID }

func TokenTxKey(txHash string) string { return "ghiblify_token_processed:" + strings.ToLower(txHash) }

func CreationKey(id string) string { return "creation:" + id }

func CreationsKey(address string) string { return "creations:" + address }
