// Package writer archives published quotes to PostgreSQL.
//
// The writer is append-only: rows are inserted with ON CONFLICT DO NOTHING on
// (symbol, observed_at), so a key published several times within the same
// minute keeps only its first record.
package writer
