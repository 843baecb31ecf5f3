// Package nebulasql moves rows between SQL databases.
//
// It provides two pipeline components built on nebula's connector model:
//
//   - sql_select reads the result of a query page by page with LIMIT and
//     OFFSET, emitting one record per row until a limit is reached or a page
//     comes back empty.
//
//   - sql_insert_or_update buffers records and, once the buffer is full or the
//     input ends, resolves each one to an UPDATE of the row matching its
//     discriminant columns or an INSERT, all inside one transaction.
//
// Engines for PostgreSQL (pgx), MySQL and SQLite are opened from
// configuration and injected by name. Tables are reflected from the live
// database and statements are built for the engine's dialect.
//
// The nebula-sql command runs pipelines from YAML files:
//
//	nebula-sql run --config pipeline.yaml
//	nebula-sql select "SELECT id, value FROM table_1 ORDER BY id" --driver sqlite --database data.db
package nebulasql
