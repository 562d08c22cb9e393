// Package timeouts defines shared timeout constants used across the duel
// subsystem. Centralizing these values prevents drift between boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// StoreWrite caps the wait time for a single challenge store write.
const StoreWrite = 2 * time.Second

// LedgerCall caps the wait time for a single ledger debit or credit.
const LedgerCall = 2 * time.Second

// FeedResubscribe is the delay before re-establishing a dropped change
// feed subscription.
const FeedResubscribe = time.Second

// Shutdown limits how long the daemon waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
