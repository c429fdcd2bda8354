// Package pagination turns a cursor-paginated listing into a lazy, strictly
// sequential sequence of pages.
//
// Each page fetch runs through the retry policy. A page that cannot be
// fetched aborts the sequence with a fatal error: enumeration is never
// silently truncated, because the checkpointed page journal is the source of
// truth for what a run still has to collect.
//
// Example usage:
//
//	p := pagination.New(source, policy, pagination.StartCursor)
//	err := p.Collect(ctx, func(page pagination.Page) error {
//		return store.AppendPage(page)
//	})
//
// The paginator:
//   - Fetches one page at a time from the current cursor
//   - Ends only on an empty page or an empty continuation cursor
//   - Exposes Cursor() as the restart point after a failure
//   - Logs progress with page and item counts
package pagination
