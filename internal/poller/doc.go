// Package poller provides the HTTP transport and periodic job scheduling
// used to poll a UGREEN NAS.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with timeout and size limits
//   - [Scheduler]: Runs named jobs at their own intervals with a worker pool
//   - [Job]: A named periodic unit of work
//   - [Cycle]: The outcome of one job run
//
// Users of the nasbridge library should not need to interact with this
// package directly. Configuration is done through the main nasbridge package.
package poller
