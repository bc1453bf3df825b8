// Package http exposes the interview scheduler over HTTP.
//
// The router exposes the following endpoints:
//   - POST /webhooks/messages: inbound chat messages. Accepts the provider's
//     form post (From, Body, MessageSid) and answers with empty TwiML, or JSON
//     {"message_id","from","body"} answered with the handling result.
//   - POST /webhooks/feedback: relayed feedback mail {"id","from","subject",
//     "text","received_at"}. Items are queued for the feedback reconciler;
//     redelivered ids are acknowledged once.
//   - POST /api/v1/batches, GET /api/v1/batches/{id}: shortlist candidates and
//     open one negotiation per candidate (`batchRequest` in batch_handler.go).
//   - GET /api/v1/interviews, GET /api/v1/interviews/{id},
//     POST /api/v1/interviews/{id}/cancel: inspection and cancellation.
//   - POST /api/v1/debug/past-interview: only with debug routes enabled.
//   - GET/POST /api/v1/candidates, GET/POST /api/v1/interviewers,
//     PUT /api/v1/interviewers/{id}/availability: roster management. Windows
//     use the {"day","start","end"} form of the roster seed file.
//   - GET /healthz.
//
// Every /api/v1 route requires the admin key in X-API-Key or as a bearer
// token. Webhooks are rate limited per client address.
package http
