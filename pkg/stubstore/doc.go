// Package stubstore is a small stand-in for the remote todo collection.
//
// It persists todos through a go-repository-bun record repository over
// SQLite, caches record reads through the cache package and serves the
// Strapi-style endpoints the sync engine talks to.
// The response shape can be switched between the two backend generations:
//
//	ShapeFlattened  fields next to id, plus a documentId (newer backends)
//	ShapeNested     fields under "attributes", numeric ids only, done as 0/1
//	ShapeMixed      alternates per item
//
// The server is meant for tests, demos and local development.
package stubstore
