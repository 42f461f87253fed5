// Package engine runs service scripts.
//
// An Engine is built once per process and owns the shared state: the
// two-tier script cache, the sandbox visibility policy and the compiled
// extensions. Every inbound request gets its own Context, which owns one
// goja runtime for the request's lifetime:
//
//	ctx, err := eng.NewContext(parent)      // Created
//	err = ctx.Prepare(meta, src)            // Preparing: libraries, host objects, extensions
//	resp, err := ctx.Evaluate(path, req)    // Evaluating: user script under the watchdog
//	err = resp.Write(w)                     // Completed, TimedOut or Failed
//	ctx.Dispose()                           // Disposed, on every path
//
// Failures are typed: InitializationError, ErrScriptNotFound, ServerError
// and ErrTimeout map to 500, 404, 500 and 503 responses respectively.
package engine
