// Package pg provides a PostgreSQL-backed checkpoint.Store using pgx/v5.
//
// The store takes a [Querier], so a *pgxpool.Pool, a single pgx.Conn or a
// pgx.Tx all work. Call [Store.EnsureSchema] once to create the table in
// development; production deployments should manage the DDL with their
// migration tooling.
//
// Example:
//
//	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	if err != nil { ... }
//	store := pg.New(pool)
//	if err := store.EnsureSchema(ctx); err != nil { ... }
package pg
