/*
Package api implements the wikifeed admin HTTP server.

The server exposes process health and a small subscription management
surface over plain HTTP and JSON:

	GET    /health               liveness with version
	GET    /ready                503 until the stream is connected and the store answers
	GET    /live                 uptime
	GET    /metrics              Prometheus exposition
	GET    /stats                ingest counters (records, malformed, delivered, ...)
	GET    /events?limit=N       recent lifecycle events, oldest first
	GET    /subscriptions        all subscriptions
	GET    /subscriptions/{id}   one subscription
	PUT    /subscriptions/{id}   create or replace: {"source": "enwiki", "kinds": ["edit"]}
	DELETE /subscriptions/{id}   remove

Writes go to the store first, when one is configured, and then to the
registry, so a subscription accepted by the API survives a restart. Every
error response has the form {"error": "..."}.

# Usage

	server := api.NewServer(api.Options{
		Registry: reg,
		Store:    store,
		Stats:    engine,
		Broker:   broker,
		Version:  version,
	})
	go server.Start(":9090")
	defer server.Shutdown(ctx)

The server has no authentication. Bind it to a private address.
*/
package api
