// Package feed implements the real-time price feed session.
//
// A Session owns one subscription to one symbol. On Start it:
//  1. publishes any unexpired cached history (warm start)
//  2. fetches an authoritative snapshot once, in the background
//  3. opens the stream and subscribes, in parallel with 2
//
// Incoming history frames replace the whole history and refresh the cache;
// price frames only move the latest price. Frames for other symbols and
// malformed frames are dropped. When the socket goes away the session backs
// off (1s * 2^attempts, capped at 15s, attempts capped at 6) and dials a fresh
// socket. Close tears everything down: fetch, timer, socket, in that order.
//
// All session state is owned by a single event-loop goroutine. Observers are
// called from that goroutine and must not block.
//
// A Manager runs independent sessions for many symbols.
package feed
