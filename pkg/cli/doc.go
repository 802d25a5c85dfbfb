// Package cli holds the shared pieces of the aperture command: result
// formatters (text and JSON), a carriage-return progress bar for the
// benchmark command, typed command/config errors, and signal-to-context
// plumbing for graceful shutdown.
package cli
