// Package logging provides structured logging for fanout runs.
//
// It wraps Go's log/slog with a JSON handler so that planning and
// coordination logs can be filtered after the fact. Child loggers carry
// persistent attributes (run, batch, agent, stage) that are attached to every
// entry they emit.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/fanout", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRun("01HX...").WithStage("coordinate")
//	runLog.Info("batch finished", "batch_id", "batch-2", "failed", 0)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"batch finished","run_id":"01HX...","stage":"coordinate","batch_id":"batch-2","failed":0}
//
// A nil *Logger is valid and discards everything, so components can accept an
// optional logger without nil checks at every call site.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package logging
