// Package sessions defines the session abstraction shared by the transport and
// server capability code, plus the in-process Registry that maps session
// identities to live transport channels.
//
// Layers & Roles
//
//	Transport (sse)  -> owns a push channel per client, creates and removes registry entries
//	Registry         -> identity -> channel map, sharded for concurrent access
//	Session object   -> per-session view exposed to capability code (mcpservice)
//
// # Registry
//
// Registry is generic over the channel type it stores. Entries are inserted
// when a client opens its push stream and removed exactly once, when that
// stream closes:
//
//	reg := sessions.NewRegistry[*sse.Channel]()
//	id := reg.Create(ch)          // mint identity, insert
//	ch, err := reg.Lookup(id)     // ErrSessionNotFound once removed
//	reg.Remove(id)                // idempotent
//
// Identities are RFC 4122 v4 UUIDs unless WithIDGenerator overrides them.
// Generated identities must never repeat for the life of the process;
// Create panics if a generator returns an identity that is already live.
//
// Nothing here is persisted: a process restart forgets every session.
package sessions
