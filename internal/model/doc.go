// Package model defines the core data types shared across components.
//
// Types:
//   - Key: canonical stock symbol (trimmed, upper-case, non-empty)
//   - Record: one quote observation produced per tick
//
// Records are encoded with the wire field names downstream consumers already
// read: StockSymbol, LastTradePrice, LastTradeDateTime.
package model
