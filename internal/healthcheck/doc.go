// Package healthcheck determines whether a single URL is reachable.
//
// A Prober runs an ordered list of attempts (HEAD, then GET, optionally a
// favicon fetch) under one shared deadline and stops at the first attempt that
// gets any HTTP response back. Transport failures are never returned as errors;
// they are classified into a Status so that "the target is down" can be told
// apart from "the monitor is broken".
package healthcheck
