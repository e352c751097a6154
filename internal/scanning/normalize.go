package scanning

import (
	"math"
	"strings"
	"time"
)

// dateFormats are the fallback layouts tried when the model ignores the
// YYYY-MM-DD instruction.
var dateFormats = []string{
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// normalizeDate returns date in ISO form, or "" when it cannot be parsed.
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	if d, err := time.Parse("2006-01-02", date); err == nil {
		return d.Format("2006-01-02")
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, date); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// normalizeAmount rounds to an integer and clamps negatives to zero;
// extracted amounts are always non-negative minor currency units.
func normalizeAmount(amount *float64) int64 {
	if amount == nil {
		return 0
	}
	v := int64(math.Round(*amount))
	if v < 0 {
		return 0
	}
	return v
}

// clampConfidence forces a confidence into [0,1], defaulting to 0.5 when
// the model omitted it.
func clampConfidence(c *float64) float64 {
	if c == nil {
		return 0.5
	}
	switch {
	case *c < 0:
		return 0
	case *c > 1:
		return 1
	}
	return *c
}

// normalize fills every missing or malformed field with its default and
// produces the immutable extraction result. The expense list is never nil.
func normalize(raw *rawResult, now time.Time) *Result {
	topMerchant := strings.TrimSpace(raw.Merchant)
	topDate := normalizeDate(raw.ReceiptDate)

	today := now.Format("2006-01-02")

	expenses := make([]Expense, 0, len(raw.Expenses))
	var total int64
	for _, re := range raw.Expenses {
		exp := Expense{
			Amount:       normalizeAmount(re.Amount),
			Merchant:     strings.TrimSpace(re.Merchant),
			Date:         normalizeDate(re.Date),
			CategoryName: strings.TrimSpace(re.CategoryName),
			Note:         strings.TrimSpace(re.Note),
			Confidence:   clampConfidence(re.Confidence),
		}
		if re.CategoryID != nil {
			exp.CategoryID = strings.TrimSpace(*re.CategoryID)
		}
		if exp.Merchant == "" {
			exp.Merchant = topMerchant
		}
		if exp.Date == "" {
			exp.Date = topDate
		}
		if exp.Date == "" {
			exp.Date = today
		}
		if exp.CategoryName == "" {
			exp.CategoryName = "Uncategorized"
		}
		total += exp.Amount
		expenses = append(expenses, exp)
	}

	result := &Result{
		Expenses:    expenses,
		TotalAmount: total,
		ReceiptDate: topDate,
		Merchant:    topMerchant,
		Confidence:  clampConfidence(raw.Confidence),
	}
	if raw.TotalAmount != nil {
		if v := normalizeAmount(raw.TotalAmount); v > 0 {
			result.TotalAmount = v
		}
	}
	return result
}

// resultFromResponse runs the shared parse-and-normalize pipeline every
// backend feeds its raw model text through.
func resultFromResponse(text string) (*Result, error) {
	raw, err := parseRawResult(text)
	if err != nil {
		return nil, err
	}
	result := normalize(raw, time.Now())
	result.RawResponse = text
	return result, nil
}
