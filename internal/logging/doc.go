// Package logging wraps zap for healthqa.
//
// Loggers are context aware: every call appends correlation fields found
// on the context (OpenTelemetry trace and span ids, the conversation
// session id, the HTTP request id). Output goes to stdout through a
// redacting encoder and optionally to an OpenTelemetry log provider.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	logger.Info(ctx, "clarification requested", zap.String("category", "headache"))
//
// Health questions are personal data. Message text is never logged at
// Info or above; use Trace for it.
package logging
