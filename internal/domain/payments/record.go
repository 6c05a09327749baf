package payments

// Method identifies the payment rail a credit purchase came through.
type Method string

const (
	MethodStripe        Method = "stripe"
	MethodCoinbase      Method = "coinbase"
	MethodCelo          Method = "celo"
	MethodBasePay       Method = "base_pay"
	MethodGhiblifyToken Method = "ghiblify_token"
	MethodAdmin         Method = "admin"
)

func (m Method) Valid() bool {
	switch m {
	case MethodStripe, MethodCoinbase, MethodCelo, MethodBasePay, MethodGhiblifyToken, MethodAdmin:
		return true
	default:
		return false
	}
}

// Record is one entry in a wallet's purchase history.
type Record struct {
	Method         Method  `json:"payment_method"`
	Type           string  `json:"type"`
	PaymentID      string  `json:"payment_id,omitempty"`
	TxHash         string  `json:"tx_hash,omitempty"`
	Tier           string  `json:"tier,omitempty"`
	Credits        int64   `json:"credits"`
	Amount         float64 `json:"amount,omitempty"`
	OriginalAmount float64 `json:"original_amount,omitempty"`
	Discount       float64 `json:"discount,omitempty"`
	Savings        float64 `json:"savings,omitempty"`
	TokenAmount    string  `json:"token_amount,omitempty"`
	Status         string  `json:"status,omitempty"`
	Timestamp      int64   `json:"timestamp"`
}
