package dbharness

import "errors"

// ErrConfiguration is the root of every setup-time configuration failure:
// an unknown alias in a declaration, an isolation mode the engine cannot
// support, an invalid mirror relationship. These fail the test during setup,
// before its body runs, and are matched with errors.Is.
var ErrConfiguration = errors.New("harness configuration error")

// ErrSessionClosed is returned by operations on a session after Close.
var ErrSessionClosed = errors.New("harness session is closed")
