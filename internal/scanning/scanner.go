package scanning

import "context"

// Category is a ledger category offered to the model for classification.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsIncome bool   `json:"is_income"`
}

// Expense is one extracted expense. Amount is an integer in minor currency
// units and is never negative; Date is ISO YYYY-MM-DD; Confidence is in [0,1].
type Expense struct {
	Amount       int64   `json:"amount"`
	Merchant     string  `json:"merchant"`
	Date         string  `json:"date"`
	CategoryID   string  `json:"categoryId,omitempty"`
	CategoryName string  `json:"categoryName"`
	Note         string  `json:"note"`
	Confidence   float64 `json:"confidence"`
}

// Result is the structured outcome of scanning one receipt. Expenses is
// always non-nil, possibly empty.
type Result struct {
	Expenses    []Expense `json:"expenses"`
	TotalAmount int64     `json:"totalAmount"`
	ReceiptDate string    `json:"receiptDate,omitempty"`
	Merchant    string    `json:"merchant,omitempty"`
	Confidence  float64   `json:"confidence"`
	RawResponse string    `json:"rawResponse,omitempty"`
}

// Scanner defines the interface for receipt extraction backends.
type Scanner interface {
	// ScanReceipt analyzes a receipt image and extracts structured expenses.
	// The call is a single blocking model invocation; callers impose a
	// timeout through ctx.
	ScanReceipt(ctx context.Context, imageData []byte, contentType string, categories []Category) (*Result, error)
	// Close closes the scanner and releases resources
	Close() error
}

// scanTemperature keeps run-to-run variance low. Extraction is still not
// deterministic and callers must not assume it is.
const scanTemperature = 0.1
