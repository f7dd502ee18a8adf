// Package logging centralizes slog construction and shared structured keys.
//
// Components receive a *slog.Logger from the daemon entry point and derive
// scoped loggers with NewComponentLogger. WithContext stamps generation,
// shot, user, and correlation identifiers extracted from a request context so
// every log line emitted under one render run correlates without manual
// plumbing.
package logging
