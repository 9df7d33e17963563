// Package logging provides the structured debug log for zerepyctl runs.
//
// It wraps log/slog with a JSON handler. Each invocation gets a run ID so the
// entries of one install or serve can be filtered out of a shared log file.
// Child loggers add the lifecycle phase and the component that emitted the
// entry:
//
//	logger, err := logging.NewLogger(logging.Options{
//	    Dir:      "/home/me/.local/state/zerepyctl",
//	    Level:    logging.LevelInfo,
//	    Rotation: logging.DefaultRotationConfig(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithRun(logging.NewRunID()).WithPhase("fetching")
//	log.WithComponent("source").Info("pulled checkout", "dir", dir)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"pulled checkout","run_id":"6f1c...","phase":"fetching","component":"source","dir":"/work/ZerePy"}
//
// The log file is zerepyctl.log inside Dir and is rotated by size through
// [RotatingWriter]. Messages meant for the person at the terminal are not
// written here; they go through the ui package.
package logging
