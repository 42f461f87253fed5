// Package jsgi translates between HTTP and the JSGI value convention used by
// service scripts.
//
// A request becomes a plain script object with method, path, query, headers
// and an input proxy over the body. The script returns an object with
// status, headers and an iterable body. ParseResponse validates that object
// completely before anything is written and yields an immutable Response;
// Response.Write then streams the body by iterating it a second time.
package jsgi
