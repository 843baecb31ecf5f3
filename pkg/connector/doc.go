// Package connector is the root of the nebula-sql connector framework.
//
// The sub-packages are:
//
//   - core: the Source and Destination interfaces and the RecordStream that
//     connects them.
//
//   - base: BaseConnector, embedded by every connector. It carries the logger,
//     a metrics collector, timeouts and the retry policy used for acquiring
//     connections.
//
//   - registry: factories keyed by connector name, filled by the init
//     functions of the connector packages, and a catalog describing them.
//
//   - sources/sqlselect: the sql_select paginated reader.
//
//   - destinations/sqlupsert: the sql_insert_or_update buffered writer.
//
//   - destinations/jsonl: writes records as JSON lines, used by the CLI.
//
// Connectors never open databases. They look their engine up by name in an
// engine.Services registry:
//
//	services, err := engine.OpenServices(ctx, cfg.Engines, 10*time.Second)
//	source, err := registry.CreateSource(&cfg.Source, services)
//	destination, err := registry.CreateDestination(&cfg.Destination, services, nil)
package connector
