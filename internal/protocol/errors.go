package protocol

import "errors"

var (
	// ErrMalformedAnnouncement indicates a discovery datagram that is not a
	// JSON object of the expected shape.
	ErrMalformedAnnouncement = errors.New("protocol: malformed announcement")

	// ErrMalformedChat indicates a payload without the "[name]: " header.
	ErrMalformedChat = errors.New("protocol: malformed chat payload")

	// ErrMalformedAvatar indicates an avatar suffix that is not valid base64.
	ErrMalformedAvatar = errors.New("protocol: malformed avatar suffix")

	// ErrMalformedFile indicates a file payload with a missing tag,
	// an unknown file type or a non-numeric size.
	ErrMalformedFile = errors.New("protocol: malformed file payload")

	// ErrNotForwarded is returned when a payload lacks the forwarding marker.
	ErrNotForwarded = errors.New("protocol: payload is not forwarded")
)
