/*
Package tracing stamps every inbound request with a request ID and records a
span for it.

The request ID is taken from X-Request-Id when the caller supplies a valid
ULID and generated otherwise. It is stored in the request context, echoed in
the response, forwarded on outbound calls the script makes, and attached to
every log line of the request. Finished spans are handed to a buffered
collector that logs them at debug level; a full buffer drops spans rather
than blocking requests.

	tracer := tracing.New("engine", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))
*/
package tracing
