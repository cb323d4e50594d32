// Package dispatch maps named actions to launches or documentation URLs.
//
// A shell action becomes the command line
//
//	<interpreter> <script> <subcommand> <document>
//
// started in the document's directory, either as a background subprocess whose
// output is appended to the output log, or inside a new terminal window.
// A URL action is handed to the browser opener; no launch request is built.
//
// Invocation is synchronous up to process start. The dispatcher never waits
// for a launched process, never deduplicates repeated invocations and never
// checks that the document, interpreter or script exist: the operating system
// reports spawn errors, and everything after start shows up in the output log
// or the terminal.
//
// Error handling:
//   - Unknown action name → ErrUnknownAction
//   - Shell action without a document → ErrNoActiveDocument
//   - No launcher for the requested mode → ErrNoLauncher
//   - Spawn failure → the exec error, wrapped with the action ID
//
// Events (when a publisher is configured):
//   - launch.started after a process has started
//   - url.opened after a URL was handed to the opener
//
// Launchers publish launch.output and launch.exited themselves.
//
// With a Recorder, every resolved invocation lands in the launch journal,
// including those that fail before a process starts.
package dispatch
