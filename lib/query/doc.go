// Package query assembles the addresses of REST requests sent to cluster nodes.
//
// A Builder accumulates ordered path segments ("commands") and a multimap of
// query parameters. Parameters added with AddParameter are appended, so the
// same key may occur several times. SetParameter replaces all values of a key
// and is used for pagination cursors such as limit and skip.
//
// Builders are pure data, they perform no I/O. A node owns a canonical
// template builder seeded with its base address; callers always work on a
// Clone of it so the template is never mutated by a query execution.
//
// Usage Example:
//
//	req := query.New().
//	  AddCommand("default", "_design", "beer", "_view", "by_name").
//	  AddParameter("stale", "ok").
//	  SetParameter("limit", 10)
//
//	base, _ := url.Parse("http://10.0.0.1:8092/")
//	addr := req.Resolve(base) // http://10.0.0.1:8092/default/_design/beer/_view/by_name?stale=ok&limit=10
package query
