package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("buildPrompt", func() {
	var (
		categories []Category
		prompt     string
	)

	JustBeforeEach(func() {
		prompt = buildPrompt(categories)
	})

	When("categories are supplied", func() {
		BeforeEach(func() {
			categories = []Category{
				{ID: "c1", Name: "Groceries"},
				{ID: "c2", Name: "Salary", IsIncome: true},
			}
		})

		It("embeds every category id and name", func() {
			Expect(prompt).To(ContainSubstring("c1: Groceries"))
			Expect(prompt).To(ContainSubstring("c2: Salary"))
		})

		It("marks income categories", func() {
			Expect(prompt).To(ContainSubstring("c2: Salary (income)"))
		})

		It("instructs per-item analysis and same-category grouping", func() {
			Expect(prompt).To(ContainSubstring("each purchased item individually"))
			Expect(prompt).To(ContainSubstring("same category into ONE expense"))
		})

		It("instructs minor currency units and ISO dates", func() {
			Expect(prompt).To(ContainSubstring("minor currency units"))
			Expect(prompt).To(ContainSubstring("YYYY-MM-DD"))
		})
	})

	When("no categories are supplied", func() {
		BeforeEach(func() {
			categories = nil
		})

		It("still produces the full rule set", func() {
			Expect(prompt).To(ContainSubstring("Return ONLY valid JSON"))
		})
	})
})
