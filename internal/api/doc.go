// Package api implements the HTTP REST API and WebSocket server for the
// controls service.
//
// This package provides:
//   - REST endpoints for control CRUD, import, style read-out and learning
//   - Entity editing addressed by list (?list=feedbacks) or action set (?step=0&set=down)
//   - The step and action-set RPC surface under /api/v1/rpc/{method}
//   - A WebSocket hub relaying registry events to subscribed clients
//   - A read-only journal of edits at /api/v1/journal and /api/v1/controls/{id}/journal
//
// # RPC
//
// Every method answers {"ok": bool}. An unknown control gives ok=false rather
// than an error; a control kind without steps gives 422 with the message
// "Control does not support this operation".
//
// # WebSocket
//
// Clients subscribe with {"type":"subscribe","payload":{"channels":[...],
// "control_ids":[...]}}. Unknown channels are reported back as rejected.
// Subscribing to learn.changed or trigger.condition first replays the current
// state as events marked "snapshot": the in-flight learn IDs, then the
// condition of each watched trigger.
//
// # Graceful Degradation
//
// The server runs without MQTT. Editing and WebSocket events keep working;
// learning answers 503 and feedback values stop updating.
package api
