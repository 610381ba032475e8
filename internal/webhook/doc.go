// Package webhook implements signed HTTP webhook endpoints that forward
// payloads into chat channels.
//
// # Security Model
//
// - HMAC-SHA1 signatures ("sha1=<hex>") verified with crypto/subtle
// - Body size limits enforced before verification
// - Generic error responses; no signature details leaked
// - Request logging excludes payloads
//
// # Configuration
//
//	webhooks:
//	  listen: "0.0.0.0:8080"
//	  endpoints:
//	    - path: /shotgrid
//	      handler: relay
//	      channel: testing
//	      secret: ${SHOTGRID_SECRET}
//	      signature_header: x-sg-signature
//	      max_body_size: 1MB
//
// # Request Flow
//
//  1. HTTP POST arrives at a configured path
//  2. Body size checked (413 if too large)
//  3. Signature header verified against the endpoint secret (401 on mismatch)
//  4. Payload handler builds the chat message (400 if malformed)
//  5. Message delivered synchronously to the endpoint's channel
//  6. 200 {"status":"ok"} returned, whether or not delivery succeeded
//
// GET / answers 400 with an empty body. Any other path or method answers a
// generic 404.
package webhook
