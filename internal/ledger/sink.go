package ledger

import "context"

// Append validates entry and writes it through store. The amount check runs
// here even though every caller validates upstream.
func Append(ctx context.Context, store Store, entry Entry) (Entry, error) {
	if !entry.Amount.IsPositive() {
		return Entry{}, ErrNonPositiveAmount
	}
	if entry.Type != TypeRevenue && entry.Type != TypeExpense {
		return Entry{}, ErrInvalidEntry
	}
	if entry.Category == "" || (entry.Status != StatusPending && entry.Status != StatusPaid) {
		return Entry{}, ErrInvalidEntry
	}
	return store.InsertEntry(ctx, entry)
}
