// Package database manages the PostgreSQL pool used by the quote archive.
//
// The archive keeps one row per symbol per minute in the quotes table;
// EnsureSchema creates it on startup when it is missing.
package database
