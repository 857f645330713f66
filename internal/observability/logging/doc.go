// Package logging holds the slog helpers shared by the API and the worker.
//
// Loggers travel through context.Context so that a batch run's run_id, or an
// HTTP request's request_id, is attached to every line logged below it:
//
//	logger := logging.WithRunID(logging.FromContext(ctx), runID)
//	ctx = logging.WithLogger(ctx, logger)
package logging
