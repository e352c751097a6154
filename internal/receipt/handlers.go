package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/marcinparda/actual/internal/fault"
	"github.com/marcinparda/actual/internal/reconcile"
	"github.com/marcinparda/actual/internal/scanning"
)

// envelope is the uniform response wrapper for every endpoint.
type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// statusForKind maps the error taxonomy to HTTP status codes.
func statusForKind(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindCommit:
		return http.StatusUnprocessableEntity
	case fault.KindParse, fault.KindProcessing:
		return http.StatusBadGateway
	case fault.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeData(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(envelope{Status: "ok", Data: data}); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	if encErr := json.NewEncoder(w).Encode(envelope{
		Status:  "error",
		Message: err.Error(),
		Reason:  string(kind),
	}); encErr != nil {
		slog.Error("Error encoding response", "error", encErr)
	}
}

// receiptURL is the path the stored bytes are served from; transaction
// notes and process responses embed it.
func receiptURL(fileID string) string {
	return fmt.Sprintf("/api/receipts/%s/file", fileID)
}

// handleUploadReceipt accepts a multipart upload with field "receipt".
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	maxForm := s.service.maxSize
	if maxForm <= 0 {
		maxForm = 50 << 20
	}
	if err := r.ParseMultipartForm(maxForm); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, fault.Wrap(fault.KindValidation, "parsing upload form", err))
		return
	}

	f, header, err := r.FormFile("receipt")
	if err != nil {
		writeError(w, fault.Wrap(fault.KindValidation, "missing receipt file field", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, fmt.Errorf("reading upload: %w", err))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		contentType = ContentTypeForExtension(ext)
	}

	rec, err := s.service.Store(data, contentType)
	if err != nil {
		slog.Error("Error storing receipt", "filename", header.Filename, "error", err)
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, map[string]any{
		"fileId":   rec.FileID,
		"filename": rec.Filename,
		"size":     rec.Size,
		"path":     receiptURL(rec.FileID),
	})
}

// processRequest is the body for POST /api/receipts/process.
type processRequest struct {
	FileID     string              `json:"fileId"`
	Categories []scanning.Category `json:"categories"`
}

// handleProcessReceipt runs extraction over a stored receipt.
func (s *Server) handleProcessReceipt(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.Wrap(fault.KindValidation, "invalid request body", err))
		return
	}
	if req.FileID == "" {
		writeError(w, fault.New(fault.KindValidation, "fileId is required"))
		return
	}

	// The model call has no mid-flight cancellation once issued; the
	// timeout here converts expiry into a processing failure.
	ctx, cancel := context.WithTimeout(r.Context(), s.scanTimeout)
	defer cancel()

	result, err := s.service.Process(ctx, req.FileID, req.Categories)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.service.index.Get(req.FileID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"expenses":    result.Expenses,
		"totalAmount": result.TotalAmount,
		"receiptDate": result.ReceiptDate,
		"merchant":    result.Merchant,
		"confidence":  result.Confidence,
		"rawResponse": result.RawResponse,
		"receiptUrl":  receiptURL(rec.FileID),
		"fileId":      rec.FileID,
		"filename":    rec.Filename,
		"extension":   filepath.Ext(rec.Filename),
	})
}

// handleGetReceiptFile serves the stored bytes for a receipt.
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, fault.New(fault.KindValidation, "receipt id required"))
		return
	}

	data, rec, err := s.service.Retrieve(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", ContentTypeForExtension(filepath.Ext(rec.Filename)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, fault.New(fault.KindValidation, "receipt id required"))
		return
	}

	if err := s.service.Delete(id); err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{"deleted": id})
}

// commitExpense is one reviewed expense submitted for commit.
type commitExpense struct {
	Amount     int64  `json:"amount"`
	Date       string `json:"date"`
	Merchant   string `json:"merchant"`
	Note       string `json:"note"`
	CategoryID string `json:"categoryId"`
	AccountID  string `json:"accountId"`
	PayeeID    string `json:"payeeId"`
}

// commitRequest is the body for POST /api/receipts/commit.
type commitRequest struct {
	FileID   string          `json:"fileId"`
	Expenses []commitExpense `json:"expenses"`
}

// handleCommitReceipt turns a reviewed expense list into one atomic
// transaction batch against the ledger.
func (s *Server) handleCommitReceipt(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.Wrap(fault.KindValidation, "invalid request body", err))
		return
	}
	if req.FileID == "" {
		writeError(w, fault.New(fault.KindValidation, "fileId is required"))
		return
	}
	if len(req.Expenses) == 0 {
		writeError(w, fault.New(fault.KindValidation, "at least one expense is required"))
		return
	}

	// The commit references the stored receipt in every note, so the id
	// must still resolve.
	if _, err := s.service.index.Get(req.FileID); err != nil {
		writeError(w, err)
		return
	}

	payees, err := s.ledger.Payees(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	result := &scanning.Result{Expenses: make([]scanning.Expense, 0, len(req.Expenses))}
	for _, e := range req.Expenses {
		result.Expenses = append(result.Expenses, scanning.Expense{
			Amount:     e.Amount,
			Date:       e.Date,
			Merchant:   e.Merchant,
			Note:       e.Note,
			CategoryID: e.CategoryID,
			Confidence: 1,
		})
	}

	session := s.engine.NewSession(result, req.FileID, receiptURL(req.FileID), "", payees)
	for i, e := range req.Expenses {
		id := fmt.Sprintf("exp-%d", i+1)
		if e.AccountID != "" {
			if err := session.Update(id, reconcile.FieldAccount, e.AccountID); err != nil {
				writeError(w, err)
				return
			}
		}
		if e.PayeeID != "" {
			if err := session.Update(id, reconcile.FieldPayee, e.PayeeID); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	transactions, err := session.Commit(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	ids := make([]string, 0, len(transactions))
	for _, tx := range transactions {
		ids = append(ids, tx.ID)
	}

	writeData(w, http.StatusCreated, map[string]any{"transactionIds": ids})
}
