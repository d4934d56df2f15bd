// Package client implements the library-side subscription bookkeeping
// (C4, SubscriptionsMap) and the public Client API from §6: start,
// publish, subscribe, unsubscribe, acknowledge, save_subscriptions, and
// restore_subscriptions.
//
// Subscription resume-after-reconnect bookkeeping is grounded on the
// teacher's stream-resume cursor pattern (resolveStartTokenSingle in
// internal/services/streams): both resume a replay at "last acknowledged
// position + 1" rather than at a server-tracked named-group offset, which
// RocketSpeed has no concept of — the client, not the broker, owns resume
// state.
package client
