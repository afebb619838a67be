// Package dbharness lets Go test suites run against real databases safely.
//
// Tests that do not declare database access cannot touch any database: every
// connection acquisition and statement execution passes through an access
// guard that fails closed. Tests that do declare access get isolated,
// rollback-wrapped, multi-database-aware handles, with physical database
// creation and schema setup done once per run and shared by every test.
//
// A suite opens a session once, in TestMain:
//
//	func TestMain(m *testing.M) {
//		cfg := &dbharness.Config{
//			Engine:        "sqlite",
//			EngineOptions: engine.Options{MigrationsDir: "testdata/migrations"},
//		}
//		session, err := dbharness.Start(context.Background(), cfg)
//		if err != nil {
//			log.Fatal(err)
//		}
//		code := m.Run()
//		session.Close(context.Background())
//		os.Exit(code)
//	}
//
// Individual tests declare what they need:
//
//	func TestCreatesItem(t *testing.T) {
//		session.WithDB(t) // rollback-isolated access to the default alias
//		db, _ := session.DB("default")
//		...
//	}
//
// Undeclared access fails with a guard.AccessError whose message names the
// mechanisms above. Access to an alias outside the declared set fails with a
// message containing "not allowed" and the alias name.
package dbharness
