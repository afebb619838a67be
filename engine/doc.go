// Package engine defines the fixed adapter interface the harness uses to talk
// to a database engine: physical database creation and teardown, test
// environment setup (schema migrations), table flushing, and sequence resets.
//
// The harness core never imports a driver directly. Engine implementations
// (engine/postgres, engine/sqlite) register themselves by name in their init
// functions, mirroring the database/sql driver registration pattern, and are
// selected through configuration.
package engine
