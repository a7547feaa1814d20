// Package idempotency gives at-most-once semantics to retried operations.
//
// A caller claims a key with Begin. Exactly one of any number of racing callers observes
// true and owns the operation; it must finish it with Commit or Fail. Everyone else sees
// false, which is normal control flow, and may inspect the stored state with Get.
//
// SQLStore is durable and relies on the database's unique key for atomicity. MemoryStore is
// process-local and additionally expires records after their TTL. The redisstore subpackage
// provides a shared volatile variant.
package idempotency
