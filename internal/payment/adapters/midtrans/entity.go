package midtrans

const (
	bankTransferType = "bank_transfer"
	chargeAccepted   = "201"
)

type bankTransfer struct {
	Bank string `json:"bank"`
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type customerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

type customExpiry struct {
	OrderTime      string `json:"order_time"`
	ExpiryDuration int64  `json:"expiry_duration"`
	Unit           string `json:"unit"`
}

type chargeRequest struct {
	PaymentType        string             `json:"payment_type"`
	BankTransfer       bankTransfer       `json:"bank_transfer"`
	TransactionDetails transactionDetails `json:"transaction_details"`
	CustomerDetails    customerDetails    `json:"customer_details"`
	CustomExpiry       customExpiry       `json:"custom_expiry"`
}

type vaNumber struct {
	Bank     string `json:"bank"`
	VaNumber string `json:"va_number"`
}

// transactionStatus is shared by charge responses, status responses and
// HTTP notifications.
type transactionStatus struct {
	StatusCode        string     `json:"status_code"`
	StatusMessage     string     `json:"status_message"`
	TransactionID     string     `json:"transaction_id"`
	OrderID           string     `json:"order_id"`
	GrossAmount       string     `json:"gross_amount"`
	Currency          string     `json:"currency"`
	PaymentType       string     `json:"payment_type"`
	SignatureKey      string     `json:"signature_key"`
	TransactionTime   string     `json:"transaction_time"`
	SettlementTime    string     `json:"settlement_time"`
	TransactionStatus string     `json:"transaction_status"`
	FraudStatus       string     `json:"fraud_status"`
	PermataVaNumber   string     `json:"permata_va_number"`
	VaNumbers         []vaNumber `json:"va_numbers"`
	ExpiryTime        string     `json:"expiry_time"`
}
