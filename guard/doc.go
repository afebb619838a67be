// Package guard implements the process-wide database access gate.
//
// The gate sits below database/sql as a driver.Connector wrapper, so every
// connection acquisition and every statement execution is checked against the
// currently armed scope before anything reaches the real driver. A test that
// has not declared database access fails with an AccessError instead of
// silently touching the database, no matter where in the test lifecycle the
// access happens (test body, shared setup, package-level code).
//
// The guard has three states: blocking everything (the default), armed with a
// scope for the duration of one test, and blocking again after disarm.
// Arming is done by the harness at test setup; disarm runs unconditionally at
// teardown so a failed test cannot leak its permissions into the next one.
package guard
