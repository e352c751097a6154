package scanning

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func f(v float64) *float64 { return &v }

func str(v string) *string { return &v }

var _ = Describe("normalize", func() {
	var (
		raw    *rawResult
		now    time.Time
		result *Result
	)

	BeforeEach(func() {
		now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
		raw = &rawResult{}
	})

	JustBeforeEach(func() {
		result = normalize(raw, now)
	})

	When("the model returns no expenses", func() {
		It("returns an empty, non-nil list", func() {
			Expect(result.Expenses).NotTo(BeNil())
			Expect(result.Expenses).To(BeEmpty())
		})

		It("defaults the overall confidence to 0.5", func() {
			Expect(result.Confidence).To(Equal(0.5))
		})
	})

	When("an expense is fully populated", func() {
		BeforeEach(func() {
			raw.Expenses = []rawExpense{{
				Amount:       f(1200),
				Merchant:     "Shop",
				Date:         "2024-01-01",
				CategoryID:   str("c1"),
				CategoryName: "Groceries",
				Note:         "milk, eggs",
				Confidence:   f(0.92),
			}}
			raw.Merchant = "Shop"
			raw.ReceiptDate = "2024-01-01"
			raw.Confidence = f(0.9)
		})

		It("carries every field through", func() {
			Expect(result.Expenses).To(HaveLen(1))
			exp := result.Expenses[0]
			Expect(exp.Amount).To(Equal(int64(1200)))
			Expect(exp.Merchant).To(Equal("Shop"))
			Expect(exp.Date).To(Equal("2024-01-01"))
			Expect(exp.CategoryID).To(Equal("c1"))
			Expect(exp.CategoryName).To(Equal("Groceries"))
			Expect(exp.Note).To(Equal("milk, eggs"))
			Expect(exp.Confidence).To(Equal(0.92))
		})

		It("sums the total", func() {
			Expect(result.TotalAmount).To(Equal(int64(1200)))
		})
	})

	When("an expense is missing every field", func() {
		BeforeEach(func() {
			raw.Expenses = []rawExpense{{}}
			raw.Merchant = "Corner Store"
			raw.ReceiptDate = "2024-02-02"
		})

		It("defaults the amount to zero", func() {
			Expect(result.Expenses[0].Amount).To(Equal(int64(0)))
		})

		It("inherits the top-level merchant", func() {
			Expect(result.Expenses[0].Merchant).To(Equal("Corner Store"))
		})

		It("inherits the top-level receipt date", func() {
			Expect(result.Expenses[0].Date).To(Equal("2024-02-02"))
		})

		It("defaults the category name to Uncategorized", func() {
			Expect(result.Expenses[0].CategoryName).To(Equal("Uncategorized"))
		})

		It("leaves the category id empty", func() {
			Expect(result.Expenses[0].CategoryID).To(BeEmpty())
		})

		It("defaults the confidence to 0.5", func() {
			Expect(result.Expenses[0].Confidence).To(Equal(0.5))
		})
	})

	When("neither the expense nor the receipt has a date", func() {
		BeforeEach(func() {
			raw.Expenses = []rawExpense{{}}
		})

		It("falls back to the current date", func() {
			Expect(result.Expenses[0].Date).To(Equal("2024-03-10"))
		})
	})

	When("the model returns a negative amount", func() {
		BeforeEach(func() {
			raw.Expenses = []rawExpense{{Amount: f(-500)}}
		})

		It("clamps it to zero", func() {
			Expect(result.Expenses[0].Amount).To(Equal(int64(0)))
		})
	})

	When("the model returns an out-of-range confidence", func() {
		BeforeEach(func() {
			raw.Expenses = []rawExpense{
				{Confidence: f(1.4)},
				{Confidence: f(-0.2)},
			}
		})

		It("clamps it into [0,1]", func() {
			Expect(result.Expenses[0].Confidence).To(Equal(1.0))
			Expect(result.Expenses[1].Confidence).To(Equal(0.0))
		})
	})

	When("the model uses a non-ISO date format", func() {
		BeforeEach(func() {
			raw.Expenses = []rawExpense{{Date: "2024/01/05"}}
		})

		It("normalizes it to YYYY-MM-DD", func() {
			Expect(result.Expenses[0].Date).To(Equal("2024-01-05"))
		})
	})

	When("the model reports its own total", func() {
		BeforeEach(func() {
			raw.Expenses = []rawExpense{{Amount: f(100)}, {Amount: f(200)}}
			raw.TotalAmount = f(350)
		})

		It("prefers the reported total", func() {
			Expect(result.TotalAmount).To(Equal(int64(350)))
		})
	})

	When("the model omits the total", func() {
		BeforeEach(func() {
			raw.Expenses = []rawExpense{{Amount: f(100)}, {Amount: f(200)}}
		})

		It("sums the expense amounts", func() {
			Expect(result.TotalAmount).To(Equal(int64(300)))
		})
	})
})

var _ = Describe("resultFromResponse", func() {
	When("the response carries prose around the JSON", func() {
		It("returns a normalized result with the raw text attached", func() {
			text := `Sure! {"expenses": [{"amount": 450, "merchant": "Cafe"}], "merchant": "Cafe"}`
			result, err := resultFromResponse(text)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Expenses).To(HaveLen(1))
			Expect(result.Expenses[0].Amount).To(Equal(int64(450)))
			Expect(result.RawResponse).To(Equal(text))
		})
	})

	When("the response contains no JSON", func() {
		It("fails without a partial result", func() {
			result, err := resultFromResponse("no json here")
			Expect(err).To(HaveOccurred())
			Expect(result).To(BeNil())
		})
	})
})
