// Package syncer moves messages between the local cache and the server.
//
// A Worker drains the messaging outbox through a Transport: every due entry
// ends each attempt as exactly one of sent, retry (rescheduled with Backoff)
// or failed (permanent error or attempts exhausted). An Ingester applies
// server payloads with messaging.Store.UpsertFromServer, suppressing repeats
// seen within a short window.
package syncer
