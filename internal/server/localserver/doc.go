// Package localserver serves the bridge API on a Unix domain socket.
//
// The socket is created with mode 0600, so only the user running the daemon
// can reach it. A stale socket left by a crashed daemon is removed before
// listening; any other file at the path is an error.
package localserver
