// Package api provides the REST client for the market-data backend.
//
// The feed only consumes one endpoint:
//
//	GET <rest_url><history_path>?symbol=<S>
//	-> {"points":[{"timestamp":ms,"price":p},...],"latest":{"price":p,"ts":ms}}
//
// The fetch is one-shot by default; the stream supplies fresh data after it.
package api
