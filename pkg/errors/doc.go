// Package errors provides structured error types for programmatic error
// handling across the bundler.
//
// Fatal run errors (staging, unknown options, privilege, packaging) and the
// per-hook plugin failures share one type so the dispatcher can classify
// them without string matching:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeSetup,
//	    "plugin setup failed",
//	    cause,
//	    map[string]any{
//	        "plugin": "networking",
//	    },
//	)
//
//	if errors.HasCode(err, errors.ErrCodeUnknownOption) {
//	    // exit before dispatch
//	}
package errors
