// Package journal persists a user's trading journal: free-form entries,
// topics that group them, manually recorded trades and viewing sessions.
// Every row is scoped to an opaque user id; a lookup with the wrong user
// behaves as if the row does not exist.
package journal
