// Package replica routes queries between a primary and a read replica while preserving
// read-your-writes for each correlation.
//
// Writes always go to the primary and mark their correlation sticky for a configured window.
// Reads within that window, and every call made while the primary has an open transaction,
// also go to the primary. Everything else reads from the replica.
package replica
