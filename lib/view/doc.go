// Package view provides paginated, typed view queries on top of the pool executor.
//
// A ViewQuery addresses the view <bucket>/_design/<group>/_view/<view> and carries
// the usual view options (keys, ranges, grouping, staleness, ...). Every request
// is tagged with the client id of the caller.
//
// Pagination:
//
//	Query returns a single-use iterator. Each page is fetched with the current skip
//	and the configured limit (default 10). After a non-empty page the skip advances
//	by limit, an empty page ends the iteration. Without auto pagination only one page
//	is fetched, but the skip still advances so the next call to Query continues
//	with the following page.
//
// Errors are yielded once as (zero value, err) and end the iteration.
//
// A ViewQuery is not safe for concurrent use.
package view
