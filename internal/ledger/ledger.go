// Package ledger is the client for the external ledger API: read-only
// directories of accounts, categories and payees, payee creation, the
// transaction batch-apply endpoint, and the readiness probe that gates
// every receipt operation.
package ledger

// Account is a ledger account transactions are committed against.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Category is a ledger spending or income category.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsIncome bool   `json:"is_income"`
}

// Payee is a ledger payee.
type Payee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Transaction is one ledger transaction draft. Amount is an integer in
// minor currency units.
type Transaction struct {
	ID       string `json:"id,omitempty"`
	Account  string `json:"account"`
	Date     string `json:"date"`
	Amount   int64  `json:"amount"`
	Payee    string `json:"payee,omitempty"`
	Category string `json:"category,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Cleared  bool   `json:"cleared"`
}
