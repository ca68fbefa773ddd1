// Package budget implements personal-finance envelope budgeting.
// It uses the generic engine with a closed set of household categories,
// envelope presets and a planner that runs simulations in parallel.
package budget

import "github.com/warp/envelope-engine/generic"

// =============================================================================
// CATEGORIES
// =============================================================================

// Expense categories
const (
	Rent          generic.CategoryID = "rent"
	Utilities     generic.CategoryID = "utilities"
	Groceries     generic.CategoryID = "groceries"
	Transport     generic.CategoryID = "transport"
	Insurance     generic.CategoryID = "insurance"
	Health        generic.CategoryID = "health"
	DiningOut     generic.CategoryID = "dining_out"
	Entertainment generic.CategoryID = "entertainment"
	Shopping      generic.CategoryID = "shopping"
	Subscriptions generic.CategoryID = "subscriptions"
	Travel        generic.CategoryID = "travel"
	Gifts         generic.CategoryID = "gifts"
	Savings       generic.CategoryID = "savings"
)

// Income categories
const (
	Salary      generic.CategoryID = "salary"
	OtherIncome generic.CategoryID = "other_income"
)

// Internal categories: money moving between own accounts. They must net
// to zero each month.
const (
	Transfer          generic.CategoryID = "transfer"
	CreditCardPayment generic.CategoryID = "credit_card_payment"
)

// ToDo holds transactions the categorization layer could not place yet.
const ToDo generic.CategoryID = "todo"

var defaultCategories = []generic.Category{
	{ID: Rent, Name: "Rent", Kind: generic.KindExpense},
	{ID: Utilities, Name: "Utilities", Kind: generic.KindExpense},
	{ID: Groceries, Name: "Groceries", Kind: generic.KindExpense},
	{ID: Transport, Name: "Transport", Kind: generic.KindExpense},
	{ID: Insurance, Name: "Insurance", Kind: generic.KindExpense},
	{ID: Health, Name: "Health", Kind: generic.KindExpense},
	{ID: DiningOut, Name: "Dining out", Kind: generic.KindExpense},
	{ID: Entertainment, Name: "Entertainment", Kind: generic.KindExpense},
	{ID: Shopping, Name: "Shopping", Kind: generic.KindExpense},
	{ID: Subscriptions, Name: "Subscriptions", Kind: generic.KindExpense},
	{ID: Travel, Name: "Travel", Kind: generic.KindExpense},
	{ID: Gifts, Name: "Gifts", Kind: generic.KindExpense},
	{ID: Savings, Name: "Savings", Kind: generic.KindExpense},
	{ID: Salary, Name: "Salary", Kind: generic.KindIncome},
	{ID: OtherIncome, Name: "Other income", Kind: generic.KindIncome},
	{ID: Transfer, Name: "Transfer", Kind: generic.KindInternal},
	{ID: CreditCardPayment, Name: "Credit card payment", Kind: generic.KindInternal},
	{ID: ToDo, Name: "To do", Kind: generic.KindTodo},
}

// DefaultCategories returns the built-in household category set.
func DefaultCategories() generic.CategorySet {
	set, err := generic.NewCategorySet(defaultCategories...)
	if err != nil {
		// The list above is static; a failure here is a typo in it.
		panic(err)
	}
	return set
}

// Categories returns the default set extended with extra categories.
func Categories(extra ...generic.Category) (generic.CategorySet, error) {
	all := make([]generic.Category, 0, len(defaultCategories)+len(extra))
	all = append(all, defaultCategories...)
	all = append(all, extra...)
	return generic.NewCategorySet(all...)
}
