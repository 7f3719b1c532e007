// Package channel implements the channel manager: the subsystem that keeps
// a hotel's room inventory and prices synchronized across its own front desk
// and multiple OTA channels, while preventing oversell and reconciling
// externally-created bookings back into the hotel's room ledger.
//
// # Components
//
//   - Registry: channel connection records and their lifecycle
//     (testing -> active -> error/inactive).
//   - Mapper: internal-to-external room type mappings per channel.
//   - ComputeSellRate: base rate + weekend surcharge + seasonal overrides +
//     channel discount/markup.
//   - Ledger: the authoritative per-(channel, room type, date) inventory
//     rows, enforcing the cross-channel anti-oversell ceiling.
//   - Orchestrator: one scheduling loop per channel, serialized per channel,
//     pushing rates/availability and pulling bookings through the Connector
//     contract with bounded retries.
//   - Reconciler: booking ingestion with dedup on (channel, external ref),
//     conflict queue, cancellation release.
//   - SyncLogStore: append-only audit of every sync batch, payloads archived
//     to object storage.
//
// Each OTA integration implements the Connector interface against its own
// wire protocol; the sandbox subpackage provides the in-memory
// implementation used for testing-state channels and tests.
package channel
