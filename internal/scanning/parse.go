package scanning

import (
	"encoding/json"
	"strings"

	"github.com/marcinparda/actual/internal/fault"
)

// rawExpense mirrors the model's per-expense JSON. Pointer fields distinguish
// "absent" from zero so normalization can fill defaults.
type rawExpense struct {
	Amount       *float64 `json:"amount"`
	Merchant     string   `json:"merchant"`
	Date         string   `json:"date"`
	CategoryID   *string  `json:"categoryId"`
	CategoryName string   `json:"categoryName"`
	Note         string   `json:"note"`
	Confidence   *float64 `json:"confidence"`
}

// rawResult mirrors the model's top-level JSON.
type rawResult struct {
	Expenses    []rawExpense `json:"expenses"`
	TotalAmount *float64     `json:"totalAmount"`
	ReceiptDate string       `json:"receiptDate"`
	Merchant    string       `json:"merchant"`
	Confidence  *float64     `json:"confidence"`
}

// extractJSONObject returns the first balanced JSON object embedded in text.
// The model routinely wraps its JSON in prose or markdown fences, so the
// scan is string- and escape-aware rather than a naive first-{/last-} slice.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", fault.New(fault.KindParse, "no JSON object found in model response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", fault.New(fault.KindParse, "unbalanced JSON object in model response")
}

// parseRawResult extracts and decodes the model's JSON payload.
func parseRawResult(text string) (*rawResult, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fault.Wrap(fault.KindParse, "unmarshaling model response", err)
	}
	return &raw, nil
}
