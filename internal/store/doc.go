// Package store holds the latest state of every bridge entity.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [EntityState]: One entity's metadata plus its most recent reading
//
// A poll cycle writes all of its entities in one [Store.Update] call and
// subscribers receive that batch as a single message. Sends are non-blocking:
// a slow subscriber misses batches rather than stalling the poll loop.
package store
