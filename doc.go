// Package prereq is a level-scoped dependency injection engine for Go.
//
// Factories ("providers") declare what they produce, what they need, and how
// long it lives. A [Resolver] turns a set of providers into fully constructed
// object graphs on demand, caching per scope and releasing acquired resources
// in reverse order when a scope ends.
//
// # Quick Start
//
//	r := prereq.New()
//	r.AddProviders(
//		prereq.MustProvide(NewConfig),
//		prereq.MustProvide(NewLogger),
//		prereq.MustProvide(NewDatabase),
//	)
//
//	err := r.ResolveFor(ctx, func(db *Database) error {
//		return db.Ping()
//	})
//
// # Levels
//
// Every provider lives at a level: level 1 is the outermost, longest-lived
// scope, and each [Resolver.Spawn] descends one level. A provider may depend
// on types at its own level or shallower; values cache at the scope that owns
// their provider, so an application-level database is built once while a
// request-level handler is rebuilt per spawn:
//
//	r.AddProviders(
//		prereq.MustProvide(NewDatabase),                       // level 1
//		prereq.MustProvide(NewSession, prereq.AtLevel(2)),
//	)
//
//	err := r.Spawn(ctx, func(ctx context.Context, req *prereq.Resolver) error {
//		return req.ResolveFor(ctx, handle)
//	})
//
// # Resources
//
// A factory that returns a release function is a resource provider. The scope
// that invokes it records the release and runs it when the scope ends — in
// reverse acquisition order, on success, error, and panic paths alike:
//
//	func NewConn(cfg *Config) (*Conn, func(context.Context) error, error) {
//		conn, err := dial(cfg.Addr)
//		if err != nil {
//			return nil, nil, err
//		}
//		return conn, conn.Shutdown, nil
//	}
//
// # Coverage
//
// By default a provider covers exactly its return type. [As] adds interface
// coverage, letting one factory satisfy both its concrete type and the
// capabilities it implements:
//
//	prereq.MustProvide(NewPostgres, prereq.As[Store]())
package prereq
