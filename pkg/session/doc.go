/*
Package session serializes access to conversation sessions.

A session's event-processing cycle must run to completion before the next event for
the same session is accepted. The Manager enforces this with a reference-counted
in-process mutex per session key and, when configured, a distributed lock so that
replicas behind a load balancer fence each other too.
*/
package session
