// Package core defines the domain model shared by the argus detection and
// correlation packages.
//
// # Records
//
// The package provides three record types:
//   - Event: a protocol-tagged observation produced by an external normalizer
//   - Detection: a single rule-triggered finding emitted by an analyzer
//   - Alert: a higher-level finding produced by correlating detections
//
// Detection and Alert values are treated as immutable once they leave the
// component that built them; sinks only ever append them.
//
// # Design Principles
//
//  1. Interfaces are defined where used (consumer package), not here
//  2. Event carries at most one typed sub-record per protocol, so analyzers
//     match on a closed set of variants instead of probing loose fields
//  3. Absent optional fields mean "insufficient data", never an error
package core
