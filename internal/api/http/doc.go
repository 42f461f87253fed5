// Package http serves script services over HTTP.
//
// Every service request gets its own execution context, created and
// disposed inside the handler. Routes:
//
//	/:cell/:box/service/*name   service collection on the file system
//	/:cell/:box/system/*name    embedded system scripts
//	/:cell/:box/test/*name      test sources
//	/debug/*name                test sources, development mode only
//	/healthz                    liveness and cache statistics
//
// Failures are answered with plain text: 404 "404 Not Found", 500
// "Server Error : <message>" or 503 "Script TimeOut".
package http
