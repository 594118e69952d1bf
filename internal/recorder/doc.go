// Package recorder persists the price ticks a feed publishes.
//
// A Recorder is a feed observer. OnUpdate only enqueues; a background loop
// drains the queue in batches into the price_ticks table. Inserts are
// append-only and a repeated (symbol, exchange_ts) pair is skipped.
package recorder
