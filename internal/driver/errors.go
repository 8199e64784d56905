package driver

import "errors"

// ErrProtocolViolation covers malformed frames, size mismatches, and
// deserialization failures at the sync boundary (§7): the sync aborts and
// the socket is closed, but nothing about the poset's correctness is at
// stake — a well-behaved peer never sends these, a misbehaving or stale
// one does, and either way this process just tries someone else next
// round.
var ErrProtocolViolation = errors.New("sync protocol violation")
