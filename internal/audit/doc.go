// Package audit keeps a journal of control edits made through the API.
//
// Every create, import, rename, delete, entity edit and learn is recorded
// with the control it touched and the HTTP request ID that caused it, so an
// installer can trace who changed a button and when. Journal writes are
// best-effort: a failed write is logged by the caller and never fails the
// edit itself.
package audit
