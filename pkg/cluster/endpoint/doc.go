/*
Package endpoint implements one mutually-authenticated TLS connection
per cluster peer.

Conn drives a single connection through Disconnected -> Dialing ->
Handshaking -> Connected -> Closing -> Disconnected, with a
read loop that turns inbound netstring-framed JSON messages into Handler
calls, a write loop that multiplexes queued outbound messages with a
5-second heartbeat, and a watchdog that force-closes a peer whose
last_seen exceeds 60 seconds.

Manager is the process-wide owner: it runs the inbound TLS listener (a
connection is only adopted if its client certificate's CN matches a
configured endpoint), and a 5-second timer that dials any configured
outbound peer not currently Connected.
*/
package endpoint
