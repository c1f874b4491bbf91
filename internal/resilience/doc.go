// Package resilience wraps the device channel with the fault handling
// the rest of FleetGuard Core relies on.
//
// The Manager is the sole path to devices. Every operation flows
// through retry with exponential backoff, and the two failure modes get
// different treatment:
//
//   - Reads (Register, Discover, GetStatus) fall back to a TTL cache of
//     last-known-good responses when the channel is unreachable. Stale
//     data beats no data for reads.
//   - Writes (SendCommand) are never served stale. When dispatch fails
//     or the channel is already known unavailable, the command lands in
//     a bounded FIFO queue and is replayed oldest-first once the
//     channel recovers. A full queue evicts its oldest entry.
//
// Availability is tracked with asymmetric hysteresis: a background
// probe must miss several times in a row before the channel is declared
// unavailable, but any single success restores it immediately. A live
// operation that exhausts its retries flips availability off without
// waiting for the probe.
//
// Manual overrides outrank everything: a command for a blocked device
// is refused before the channel or the queue is touched.
package resilience
