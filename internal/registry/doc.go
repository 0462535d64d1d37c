// Package registry tracks subscriber callbacks grouped by a comparable key.
//
// A key is present only while it has at least one entry. Add and Remove
// report the 0->1 and 1->0 transitions so callers know when to emit wire
// subscribe and unsubscribe frames.
package registry
