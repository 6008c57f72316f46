// Package registry provides a generic thread-safe registry of named values.
//
// The schema validator and the theme catalog both keep their entries in a
// Registry, so lookups of unknown names fail the same way:
//
//	themes := registry.New[string, Theme]("theme")
//	themes.Register("journalist", journalist)
//
//	t, err := themes.Lookup("detective")
//	// err: unknown theme "detective" (*registry.NotFoundError)
//
// Keys and Range visit entries in ascending key order. Range iterates over
// a snapshot, so the callback may register entries.
package registry
