// Package bridge gives service scripts access back into the unit.
//
// The pjvm host object is built per request by the factory returned from
// NewFactory. It exposes the request identity and three ways to obtain an
// accessor: as the service subject (a token self-issued by the engine),
// with the caller's token, or with an explicit token. Accessors walk
// cell -> box -> resource or service and perform HTTP calls through a
// shared Client that rate limits, retries and trips a breaker per host.
package bridge
