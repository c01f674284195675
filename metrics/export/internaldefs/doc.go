// Package internaldefs holds the metric names, help strings and latency
// bucket bounds used by the exporters.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Register anything with a metrics registry.
package internaldefs
