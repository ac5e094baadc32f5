// Package logging provides the codefixd process log.
//
// Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Tee'd output to stdout, an append-only log file and OpenTelemetry
//   - Automatic context field injection (trace_id, span_id, request.id)
//
// Create a logger that writes to stdout and logs/service.log:
//
//	cfg := logging.NewDefaultConfig()
//	cfg.Output.File = filepath.Join("logs", "service.log")
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info(ctx, "received local_fix request", zap.String("cwe", cwe))
//
// Tests use NewTestLogger and its Assert helpers.
package logging
