// Package poller provides the sequential polling machinery for seatwatch.
//
// This package is internal to seatwatch and handles the periodic checking of
// course sections against a registration backend. Checks run strictly one at
// a time; the only suspension points are the waits between passes and the
// optional pause between two courses.
//
// The main components are:
//
//   - [Client]: HTTP session client with cookie jar, timeout and size limits
//   - [Banner]: Banner course search protocol (term authorisation + search)
//   - [Scheduler]: Runs check passes until a target reports open
//   - [Pacer]: Cron-schedule driven waits between passes
//
// Users of the seatwatch library should not need to interact with this
// package directly. Configuration is done through the main seatwatch package.
package poller
