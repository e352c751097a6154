// Package reconcile merges an extraction result with caller context and
// turns a reviewed expense list into one atomic ledger transaction batch.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/marcinparda/actual/internal/fault"
	"github.com/marcinparda/actual/internal/ledger"
	"github.com/marcinparda/actual/internal/scanning"
)

// ReviewThreshold flags expenses for mandatory visual review. The flag is
// advisory only and never blocks commit.
const ReviewThreshold = 0.8

// Field names a single editable field on an expense.
type Field string

const (
	FieldAmount   Field = "amount"
	FieldDate     Field = "date"
	FieldMerchant Field = "merchant"
	FieldNote     Field = "note"
	FieldCategory Field = "category"
	FieldAccount  Field = "account"
	FieldPayee    Field = "payee"
)

// EditableExpense is the session-local, user-mutable working copy of one
// extracted expense. It is destroyed on commit or cancel.
type EditableExpense struct {
	ID           string  `json:"id"`
	Amount       int64   `json:"amount"`
	Date         string  `json:"date"`
	Merchant     string  `json:"merchant"`
	Note         string  `json:"note"`
	CategoryID   string  `json:"categoryId,omitempty"`
	CategoryName string  `json:"categoryName"`
	Confidence   float64 `json:"confidence"`
	AccountID    string  `json:"accountId,omitempty"`
	PayeeID      string  `json:"payeeId,omitempty"`
	NeedsReview  bool    `json:"needsReview"`
}

// FileDeleter removes the stored receipt on cancel.
type FileDeleter interface {
	Delete(fileID string) error
}

// keyedLocks hands out one mutex per normalized payee name so concurrent
// commits can never both create a payee for the same merchant.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) acquire(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}

// Engine owns the shared state commit needs: the ledger API, the per-name
// payee creation locks, and the ids of payees created since startup.
type Engine struct {
	api     ledger.API
	deleter FileDeleter

	locks   *keyedLocks
	created map[string]string // normalized name -> payee id
	mu      sync.Mutex
}

// NewEngine creates a reconciliation engine. deleter may be nil when
// cancellation cleanup is handled elsewhere.
func NewEngine(api ledger.API, deleter FileDeleter) *Engine {
	return &Engine{
		api:     api,
		deleter: deleter,
		locks:   newKeyedLocks(),
		created: make(map[string]string),
	}
}

// Session is one single-owner review over a stored receipt's expenses.
// Concurrent multi-party editing of the same session is not supported.
type Session struct {
	engine     *Engine
	fileID     string
	receiptURL string
	expenses   []*EditableExpense
	payees     map[string]string // normalized name -> id, seeded from the directory
}

// NewSession seeds one EditableExpense per extracted expense. The default
// account, when supplied, is applied to every expense; payees stay
// unresolved until commit.
func (e *Engine) NewSession(result *scanning.Result, fileID, receiptURL, defaultAccountID string, payees []ledger.Payee) *Session {
	s := &Session{
		engine:     e,
		fileID:     fileID,
		receiptURL: receiptURL,
		expenses:   make([]*EditableExpense, 0, len(result.Expenses)),
		payees:     make(map[string]string, len(payees)),
	}

	for _, p := range payees {
		s.payees[normalizeName(p.Name)] = p.ID
	}

	for i, exp := range result.Expenses {
		s.expenses = append(s.expenses, &EditableExpense{
			ID:           fmt.Sprintf("exp-%d", i+1),
			Amount:       exp.Amount,
			Date:         exp.Date,
			Merchant:     exp.Merchant,
			Note:         exp.Note,
			CategoryID:   exp.CategoryID,
			CategoryName: exp.CategoryName,
			Confidence:   exp.Confidence,
			AccountID:    defaultAccountID,
			NeedsReview:  exp.Confidence < ReviewThreshold,
		})
	}

	return s
}

// Expenses returns a snapshot of the session's working copies.
func (s *Session) Expenses() []EditableExpense {
	out := make([]EditableExpense, 0, len(s.expenses))
	for _, e := range s.expenses {
		out = append(out, *e)
	}
	return out
}

// Update replaces a single field on the matching expense. It has no
// cross-field side effects.
func (s *Session) Update(expenseID string, field Field, value any) error {
	exp := s.find(expenseID)
	if exp == nil {
		return fault.Errorf(fault.KindValidation, "unknown expense %s", expenseID)
	}

	switch field {
	case FieldAmount:
		amount, ok := toInt64(value)
		if !ok || amount < 0 {
			return fault.Errorf(fault.KindValidation, "amount must be a non-negative integer")
		}
		exp.Amount = amount
	case FieldDate:
		v, ok := value.(string)
		if !ok {
			return fault.New(fault.KindValidation, "date must be a string")
		}
		exp.Date = v
	case FieldMerchant:
		v, ok := value.(string)
		if !ok {
			return fault.New(fault.KindValidation, "merchant must be a string")
		}
		exp.Merchant = v
	case FieldNote:
		v, ok := value.(string)
		if !ok {
			return fault.New(fault.KindValidation, "note must be a string")
		}
		exp.Note = v
	case FieldCategory:
		v, ok := value.(string)
		if !ok {
			return fault.New(fault.KindValidation, "category must be a string")
		}
		exp.CategoryID = v
	case FieldAccount:
		v, ok := value.(string)
		if !ok {
			return fault.New(fault.KindValidation, "account must be a string")
		}
		exp.AccountID = v
	case FieldPayee:
		v, ok := value.(string)
		if !ok {
			return fault.New(fault.KindValidation, "payee must be a string")
		}
		exp.PayeeID = v
	default:
		return fault.Errorf(fault.KindValidation, "unknown field %q", field)
	}

	return nil
}

// Commit resolves payees, assembles one transaction per expense and submits
// them as a single atomic batch. Either every transaction is created or none
// is; a missing account on any expense rejects the whole commit.
func (s *Session) Commit(ctx context.Context) ([]ledger.Transaction, error) {
	var missing []string
	for _, exp := range s.expenses {
		if exp.AccountID == "" {
			missing = append(missing, exp.ID)
		}
	}
	if len(missing) > 0 {
		return nil, fault.Errorf(fault.KindCommit,
			"cannot commit: expenses missing an account: %s", strings.Join(missing, ", "))
	}

	transactions := make([]ledger.Transaction, 0, len(s.expenses))
	for _, exp := range s.expenses {
		payeeID := exp.PayeeID
		if payeeID == "" && exp.Merchant != "" {
			id, err := s.resolvePayee(ctx, exp.Merchant)
			if err != nil {
				return nil, fmt.Errorf("resolving payee for %q: %w", exp.Merchant, err)
			}
			payeeID = id
		}

		transactions = append(transactions, ledger.Transaction{
			ID:       uuid.NewString(),
			Account:  exp.AccountID,
			Date:     exp.Date,
			Amount:   exp.Amount,
			Payee:    payeeID,
			Category: exp.CategoryID,
			Notes:    s.notes(exp.Note),
			Cleared:  false,
		})
	}

	if err := s.engine.api.AddTransactions(ctx, transactions); err != nil {
		// The batch is not retried here. Extraction and reconciliation
		// are re-derivable from the same fileId, so the caller may
		// safely run the whole stage again.
		return nil, err
	}

	s.expenses = nil
	return transactions, nil
}

// Cancel abandons the session and best-effort deletes the stored file.
func (s *Session) Cancel() {
	s.expenses = nil
	if s.engine.deleter == nil {
		return
	}
	if err := s.engine.deleter.Delete(s.fileID); err != nil {
		slog.Warn("Failed to delete receipt file on cancel", "file_id", s.fileID, "error", err)
	}
}

// notes embeds the stored receipt reference into a transaction's notes.
func (s *Session) notes(note string) string {
	if note == "" {
		return fmt.Sprintf("Receipt: %s", s.receiptURL)
	}
	return fmt.Sprintf("%s | Receipt: %s", note, s.receiptURL)
}

// resolvePayee reuses an existing payee by case-insensitive exact name
// match, creating one otherwise. Creation runs under a per-name lock shared
// across sessions so at most one payee is ever created per distinct name.
func (s *Session) resolvePayee(ctx context.Context, merchant string) (string, error) {
	key := normalizeName(merchant)
	if id, ok := s.payees[key]; ok {
		return id, nil
	}

	lock := s.engine.locks.acquire(key)
	defer lock.Unlock()

	s.engine.mu.Lock()
	id, ok := s.engine.created[key]
	s.engine.mu.Unlock()
	if ok {
		s.payees[key] = id
		return id, nil
	}

	id, err := s.engine.api.CreatePayee(ctx, strings.TrimSpace(merchant))
	if err != nil {
		return "", err
	}

	s.engine.mu.Lock()
	s.engine.created[key] = id
	s.engine.mu.Unlock()
	s.payees[key] = id
	return id, nil
}

func (s *Session) find(expenseID string) *EditableExpense {
	for _, e := range s.expenses {
		if e.ID == expenseID {
			return e
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}
