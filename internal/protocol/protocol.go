// Package protocol holds the wire formats shared by every lanchat participant:
// the discovery datagram, the chat payload with its optional avatar suffix,
// the tag-delimited file payload and the relay forwarding envelope.
//
// All formats are plain text. Nothing here performs I/O.
package protocol

// Well-known ports. Every participant on a network segment must use the same
// three numbers to interoperate.
const (
	DiscoveryPort = 12345
	ChatPort      = 12346
	RelayPort     = 12347
)

// BroadcastAddress is the limited broadcast destination of presence datagrams.
const BroadcastAddress = "255.255.255.255"
