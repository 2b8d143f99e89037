// Package dispatch turns one label file into print jobs.
//
// A Dispatcher reads the file, splits it into ^XZ-terminated blocks, and sends
// each block through a printer.Port in order, pausing between sends so the
// spooler or device can keep up. The first failing block stops the file
// (fail-fast) and the Result carries the partial count.
//
// Key properties:
//   - One dispatch at a time process-wide (a single slot shared by the folder
//     monitor, the CLI and the HTTP API)
//   - Blocks within a file are sent strictly in order
//   - BlocksSucceeded counts only sends that returned nil
//   - The dispatcher never deletes files; the folder monitor decides that from
//     Result.FullyProcessed
//
// Every outcome is logged, notified, counted in metrics and, when a Recorder
// is configured, written to the history log. Errors never escape as panics or
// stop a caller's loop.
package dispatch
