package scanning

import (
	"fmt"
	"strings"
)

// buildPrompt assembles the extraction prompt for one receipt, embedding the
// caller's full category list so the model can assign real category ids.
func buildPrompt(categories []Category) string {
	var b strings.Builder

	b.WriteString(`You are analyzing a photographed receipt. Carefully read all text in the image and extract every purchased item.

Available categories (use the exact id when assigning a category, or null if none fits):
`)

	for _, c := range categories {
		kind := "expense"
		if c.IsIncome {
			kind = "income"
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", c.ID, c.Name, kind)
	}

	b.WriteString(`
Rules:
1. Analyze each purchased item individually. Do not lump the whole receipt into a single expense unless it genuinely contains one item.
2. Group items that belong to the same category into ONE expense, and list every grouped item in that expense's "note" field.
3. Convert all currency amounts to integers in minor currency units (e.g. 12.50 becomes 1250). Amounts must never be negative.
4. Normalize all dates to YYYY-MM-DD.
5. Report a "confidence" between 0.0 and 1.0 for each expense and for the receipt overall.

Return ONLY valid JSON in this exact format:
{
  "expenses": [
    {
      "amount": 0,
      "merchant": "Store Name",
      "date": "YYYY-MM-DD",
      "categoryId": "category id or null",
      "categoryName": "Category Name",
      "note": "item one, item two",
      "confidence": 0.0
    }
  ],
  "totalAmount": 0,
  "receiptDate": "YYYY-MM-DD",
  "merchant": "Store Name",
  "confidence": 0.0
}

Important:
- Do not include any text before or after the JSON
- Do not use markdown code blocks`)

	return b.String()
}
