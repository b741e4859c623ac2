// Package runtime provides the execution context for gitdeck commands.
//
// It opens the repository, loads the configuration, and owns the engine, the
// change watcher and the metrics endpoint for the lifetime of one command.
package runtime
