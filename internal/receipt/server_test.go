package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marcinparda/actual/internal/fault"
	"github.com/marcinparda/actual/internal/ledger"
	"github.com/marcinparda/actual/internal/reconcile"
)

// mockLedger is a mock implementation of ledger.API
type mockLedger struct {
	readyErr     error
	payees       []ledger.Payee
	payeesErr    error
	createdNames []string
	createErr    error
	batches      [][]ledger.Transaction
	addErr       error
}

func newMockLedger() *mockLedger {
	return &mockLedger{}
}

func (m *mockLedger) Ready(ctx context.Context) error {
	return m.readyErr
}

func (m *mockLedger) Accounts(ctx context.Context) ([]ledger.Account, error) {
	return nil, nil
}

func (m *mockLedger) Categories(ctx context.Context) ([]ledger.Category, error) {
	return nil, nil
}

func (m *mockLedger) Payees(ctx context.Context) ([]ledger.Payee, error) {
	if m.payeesErr != nil {
		return nil, m.payeesErr
	}
	return m.payees, nil
}

func (m *mockLedger) CreatePayee(ctx context.Context, name string) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.createdNames = append(m.createdNames, name)
	return "payee-" + name, nil
}

func (m *mockLedger) AddTransactions(ctx context.Context, transactions []ledger.Transaction) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.batches = append(m.batches, transactions)
	return nil
}

// multipartBody builds a multipart request body with one file field.
func multipartBody(field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		index     *mockIndex
		storage   *mockStorage
		scanner   *mockScanner
		ledgerAPI *mockLedger
		service   *Service
		server    *Server
		recorder  *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		index = newMockIndex()
		storage = newMockStorage()
		scanner = newMockScanner()
		ledgerAPI = newMockLedger()
		idGen := &mockIDGenerator{id: "abc123"}
		timeSrc := &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(index, storage, scanner, 4<<20, idGen, timeSrc)
		engine := reconcile.NewEngine(ledgerAPI, service)
		server = NewServer(service, ledgerAPI, engine, time.Minute)
		recorder = httptest.NewRecorder()
	})

	decode := func() envelope {
		var env envelope
		Expect(json.Unmarshal(recorder.Body.Bytes(), &env)).To(Succeed())
		return env
	}

	dataMap := func() map[string]any {
		env := decode()
		Expect(env.Status).To(Equal("ok"))
		m, ok := env.Data.(map[string]any)
		Expect(ok).To(BeTrue())
		return m
	}

	Describe("readiness gating", func() {
		When("the ledger is not ready", func() {
			BeforeEach(func() {
				ledgerAPI.readyErr = errors.New("bootstrap pending")
				req := httptest.NewRequest("DELETE", "/api/receipts/abc123", nil)
				server.ServeHTTP(recorder, req)
			})

			It("fails fast with 503", func() {
				Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
			})

			It("reports the unavailable reason in the envelope", func() {
				env := decode()
				Expect(env.Status).To(Equal("error"))
				Expect(env.Reason).To(Equal(string(fault.KindUnavailable)))
			})
		})
	})

	Describe("POST /api/receipts", func() {
		When("uploading a valid JPEG", func() {
			BeforeEach(func() {
				body, contentType := multipartBody("receipt", "photo.jpg", "image/jpeg", bytes.Repeat([]byte("x"), 2<<20))
				req := httptest.NewRequest("POST", "/api/receipts", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)
			})

			It("responds 201 with the stored receipt data", func() {
				Expect(recorder.Code).To(Equal(http.StatusCreated))
				data := dataMap()
				Expect(data["fileId"]).To(Equal("abc123"))
				Expect(data["filename"]).To(Equal("abc123.jpg"))
				Expect(data["size"]).To(Equal(float64(2 << 20)))
				Expect(data["path"]).To(Equal("/api/receipts/abc123/file"))
			})

			It("stores the file durably", func() {
				Expect(storage.files).To(HaveKey("abc123.jpg"))
			})
		})

		When("uploading a text file", func() {
			BeforeEach(func() {
				body, contentType := multipartBody("receipt", "notes.txt", "text/plain", []byte("not an image"))
				req := httptest.NewRequest("POST", "/api/receipts", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)
			})

			It("rejects with 400 and a validation reason", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
				env := decode()
				Expect(env.Status).To(Equal("error"))
				Expect(env.Reason).To(Equal(string(fault.KindValidation)))
			})

			It("stores nothing durably", func() {
				Expect(storage.files).To(BeEmpty())
				Expect(index.records).To(BeEmpty())
			})
		})

		When("the file field is missing", func() {
			BeforeEach(func() {
				body, contentType := multipartBody("wrong", "photo.jpg", "image/jpeg", []byte("data"))
				req := httptest.NewRequest("POST", "/api/receipts", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(recorder, req)
			})

			It("rejects with 400", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/receipts/process", func() {
		var fileID string

		BeforeEach(func() {
			rec, err := service.Store([]byte("image bytes"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
			fileID = rec.FileID
		})

		post := func(body string) {
			req := httptest.NewRequest("POST", "/api/receipts/process", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			server.ServeHTTP(recorder, req)
		}

		When("processing succeeds", func() {
			BeforeEach(func() {
				post(`{"fileId": "abc123", "categories": [{"id": "c1", "name": "Groceries", "is_income": false}]}`)
			})

			It("responds 200 with the extraction result", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
				data := dataMap()
				Expect(data["totalAmount"]).To(Equal(float64(1200)))
				Expect(data["merchant"]).To(Equal("Shop"))
				Expect(data["receiptUrl"]).To(Equal("/api/receipts/abc123/file"))
				Expect(data["extension"]).To(Equal(".jpg"))
			})

			It("passes the categories to the scanner", func() {
				Expect(scanner.lastCategories).To(HaveLen(1))
				Expect(scanner.lastCategories[0].ID).To(Equal("c1"))
			})
		})

		When("the fileId is unknown", func() {
			BeforeEach(func() {
				post(`{"fileId": "nope", "categories": []}`)
			})

			It("responds 404", func() {
				Expect(recorder.Code).To(Equal(http.StatusNotFound))
			})
		})

		When("the model output cannot be parsed", func() {
			BeforeEach(func() {
				scanner.scanErr = fault.New(fault.KindParse, "no JSON object found in model response")
				post(`{"fileId": "abc123", "categories": []}`)
			})

			It("responds 502 with a parse reason", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadGateway))
				env := decode()
				Expect(env.Reason).To(Equal(string(fault.KindParse)))
			})

			It("leaves the stored file untouched", func() {
				Expect(storage.files).To(HaveKey("abc123.jpg"))
				Expect(index.records).To(HaveKey(fileID))
			})
		})

		When("the fileId is missing", func() {
			BeforeEach(func() {
				post(`{"categories": []}`)
			})

			It("responds 400", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("GET /api/receipts/{id}/file", func() {
		BeforeEach(func() {
			_, err := service.Store([]byte("image bytes"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
		})

		When("the receipt exists", func() {
			BeforeEach(func() {
				req := httptest.NewRequest("GET", "/api/receipts/abc123/file", nil)
				server.ServeHTTP(recorder, req)
			})

			It("serves the raw bytes", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
				Expect(recorder.Body.Bytes()).To(Equal([]byte("image bytes")))
			})

			It("resolves the content type from the extension", func() {
				Expect(recorder.Header().Get("Content-Type")).To(Equal("image/jpeg"))
			})

			It("attaches a private, time-bounded cache directive", func() {
				Expect(recorder.Header().Get("Cache-Control")).To(Equal("private, max-age=86400"))
			})
		})

		When("the receipt has been deleted", func() {
			BeforeEach(func() {
				Expect(service.Delete("abc123")).To(Succeed())
				req := httptest.NewRequest("GET", "/api/receipts/abc123/file", nil)
				server.ServeHTTP(recorder, req)
			})

			It("responds 404", func() {
				Expect(recorder.Code).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		BeforeEach(func() {
			_, err := service.Store([]byte("image bytes"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
		})

		When("the receipt exists", func() {
			BeforeEach(func() {
				req := httptest.NewRequest("DELETE", "/api/receipts/abc123", nil)
				server.ServeHTTP(recorder, req)
			})

			It("acknowledges the deletion", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
				Expect(dataMap()["deleted"]).To(Equal("abc123"))
			})
		})

		When("the receipt does not exist", func() {
			BeforeEach(func() {
				req := httptest.NewRequest("DELETE", "/api/receipts/nope", nil)
				server.ServeHTTP(recorder, req)
			})

			It("responds 404", func() {
				Expect(recorder.Code).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("POST /api/receipts/commit", func() {
		BeforeEach(func() {
			_, err := service.Store([]byte("image bytes"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
		})

		post := func(body string) {
			req := httptest.NewRequest("POST", "/api/receipts/commit", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			server.ServeHTTP(recorder, req)
		}

		When("every expense has an account", func() {
			BeforeEach(func() {
				ledgerAPI.payees = []ledger.Payee{{ID: "p1", Name: "Coffee Shop"}}
				post(`{"fileId": "abc123", "expenses": [
					{"amount": 1200, "date": "2024-01-01", "merchant": "coffee shop", "categoryId": "c1", "accountId": "acc1"}
				]}`)
			})

			It("responds 201 with transaction ids", func() {
				Expect(recorder.Code).To(Equal(http.StatusCreated))
				data := dataMap()
				Expect(data["transactionIds"]).To(HaveLen(1))
			})

			It("submits one atomic batch", func() {
				Expect(ledgerAPI.batches).To(HaveLen(1))
				tx := ledgerAPI.batches[0][0]
				Expect(tx.Account).To(Equal("acc1"))
				Expect(tx.Date).To(Equal("2024-01-01"))
				Expect(tx.Amount).To(Equal(int64(1200)))
				Expect(tx.Category).To(Equal("c1"))
				Expect(tx.Cleared).To(BeFalse())
			})

			It("reuses the existing payee case-insensitively", func() {
				Expect(ledgerAPI.createdNames).To(BeEmpty())
				Expect(ledgerAPI.batches[0][0].Payee).To(Equal("p1"))
			})

			It("embeds the receipt reference in the notes", func() {
				Expect(ledgerAPI.batches[0][0].Notes).To(ContainSubstring("/api/receipts/abc123/file"))
			})
		})

		When("an expense has no account", func() {
			BeforeEach(func() {
				post(`{"fileId": "abc123", "expenses": [
					{"amount": 1200, "date": "2024-01-01", "merchant": "Shop", "accountId": "acc1"},
					{"amount": 500, "date": "2024-01-01", "merchant": "Shop"}
				]}`)
			})

			It("rejects the whole commit with 422", func() {
				Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))
				env := decode()
				Expect(env.Reason).To(Equal(string(fault.KindCommit)))
				Expect(env.Message).To(ContainSubstring("account"))
			})

			It("creates zero transactions", func() {
				Expect(ledgerAPI.batches).To(BeEmpty())
			})
		})

		When("the fileId is unknown", func() {
			BeforeEach(func() {
				post(`{"fileId": "nope", "expenses": [{"amount": 1, "accountId": "acc1"}]}`)
			})

			It("responds 404", func() {
				Expect(recorder.Code).To(Equal(http.StatusNotFound))
			})
		})

		When("the batch submission fails", func() {
			BeforeEach(func() {
				ledgerAPI.addErr = fault.New(fault.KindProcessing, "ledger unreachable")
				post(`{"fileId": "abc123", "expenses": [{"amount": 1200, "date": "2024-01-01", "merchant": "Shop", "accountId": "acc1"}]}`)
			})

			It("surfaces the failure whole", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadGateway))
				Expect(ledgerAPI.batches).To(BeEmpty())
			})
		})
	})
})
