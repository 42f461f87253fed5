// Package logging provides structured logging for the engine using uber/zap.
//
// Production builds write JSON lines; development builds write colored
// console output. Request handling derives child loggers carrying the
// request identity so that script console output and extension logs can be
// correlated with the inbound call.
//
//	logger := logging.NewDefault()
//	reqLog := logger.ForRequest("req_01H...", "cell1", "box1", "hello")
//	reqLog.Info("script completed", zap.Int("status", 200))
package logging
