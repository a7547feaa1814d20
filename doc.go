// Package database defines the handle capability shared by the consistency and delivery
// primitives of this module.
//
// The primitives never open connections themselves. They receive a Handle (or the narrower
// Querier) from the composing application:
//  1. outbox: records events in the business transaction and relays them from a separate process.
//  2. idempotency: claims operation keys exactly once and stores their terminal outcome.
//  3. replica: routes calls between a primary and a replica handle without breaking read-your-writes.
//  4. tenant: constrains criteria and guards rows to the caller's tenant set.
//
// See the sqldb package for the database/sql implementation of Handle.
package database
