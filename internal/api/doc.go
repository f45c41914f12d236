// Package api provides the REST client for the upstream quote service.
//
// Endpoint:
//   - GET {base}/quote?symbol=SYM -> {"symbol": "SYM", "price": 135.5}
//
// The price may be encoded as a JSON number or a quoted decimal string.
// Requests are retried on 5xx and 429 responses with jittered exponential
// backoff, and can be throttled client-side with WithRateLimit.
package api
