/*
Package log provides structured logging for wikifeed using zerolog.

The package keeps a single global zerolog.Logger that every component derives
its own child logger from. Child loggers carry a "component" field so that the
output of the stream reader, the dispatcher and the API server can be told
apart without parsing messages.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Level filters messages below the threshold (debug, info, warn, error).
JSONOutput selects JSON lines; otherwise a human-readable console writer is
used. Output defaults to stdout.

# Component Loggers

	streamLog := log.WithComponent("stream")
	streamLog.Info().Str("url", url).Msg("Connected to event stream")

	subLog := log.WithSubscriberID("chat-42")
	subLog.Warn().Err(err).Msg("Delivery failed")

# Events Logged

The ingestion core emits a fixed set of lines operators can alert on:

  - "Connected to event stream" (info)
  - "Event stream connection lost" (warn, with the cause)
  - "Skipping malformed record" (warn)
  - "Delivery failed" (warn, with subscriber_id and the cause)

Everything else is debug level.
*/
package log
