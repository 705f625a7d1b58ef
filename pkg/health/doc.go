/*
Package health probes delivery targets.

A Monitor runs a Checker every Interval and reports the result to the
metrics health registry under a component name, so an unreachable webhook
shows up on /health before deliveries start failing. A target becomes
unhealthy only after Retries consecutive failures and healthy again after
one success.

Two checkers are provided:

	TCPChecker    dials host:port; TCPCheckerForURL derives it from a URL
	HTTPChecker   requests a URL and checks the status code range

Probes never affect deliveries; they only inform operators.
*/
package health
