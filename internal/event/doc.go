// Package event provides the settings engine's publish/subscribe bus.
//
// Delivery is synchronous and ordered: Publish invokes every matching
// handler in the caller's goroutine, higher priorities first, ties
// broken by subscription age. Handler failures are isolated; an error
// or panic in one handler is logged and counted but never stops the
// remaining handlers.
//
// The bus retains the last event per topic. A subscription created
// with WithReplay receives the retained event for its topic before
// Subscribe returns, marked as replayed. Subscriptions created with
// WithOnce are removed after their first delivery, replayed or live.
//
// The wildcard topic All matches every published topic. It is a
// subscription pattern only; publishing to it is an error.
package event
