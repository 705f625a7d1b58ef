/*
Package metrics provides Prometheus metrics and component health for
wikifeed.

All series are package-level variables registered in init() and served by
Handler() on /metrics.

# Metrics

Stream:

	wikifeed_stream_connected            gauge, 1 while a session is open
	wikifeed_stream_reconnects_total     counter, reconnect attempts
	wikifeed_frames_skipped_total        counter, non-message frames discarded

Ingest:

	wikifeed_records_total{result}       counter, result is accepted or malformed
	wikifeed_events_total{kind}          counter, normalized events by kind

Dispatch:

	wikifeed_deliveries_total{result}    counter, result is delivered or failed
	wikifeed_delivery_duration_seconds   histogram, one delivery
	wikifeed_dispatch_matches            histogram, subscriptions matched per event
	wikifeed_subscriptions_total         gauge, registry size

Useful queries:

	rate(wikifeed_records_total{result="malformed"}[5m])
	rate(wikifeed_deliveries_total{result="failed"}[5m]) / rate(wikifeed_deliveries_total[5m])
	histogram_quantile(0.95, rate(wikifeed_delivery_duration_seconds_bucket[5m]))

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DeliveryDuration)

# Health

Components report their state with RegisterComponent and UpdateComponent.
GetHealth is unhealthy if any component is; GetReadiness only looks at the
critical components, which default to the stream and can be changed with
SetCriticalComponents. The Collector keeps the stream component in step
with the connection events published on the events broker.
*/
package metrics
