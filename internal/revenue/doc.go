// Package revenue turns ingested point-of-sale transactions into per-period
// revenue, historical baselines and performance classifications.
//
// Everything here is a pure function of its arguments: no I/O, no shared
// state, no configuration beyond what the caller passes in. Money is summed
// as exact decimals, so results do not depend on input order.
package revenue
