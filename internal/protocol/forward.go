package protocol

import "strings"

// ForwardMarker prefixes every payload meant for the relay role.
const ForwardMarker = "[FILE_FORWARD]:"

// WrapForward prepends the forwarding marker.
func WrapForward(payload string) string {
	return ForwardMarker + payload
}

// IsForwarded reports whether payload carries the forwarding marker.
func IsForwarded(payload string) bool {
	return strings.HasPrefix(payload, ForwardMarker)
}

// UnwrapForward strips the forwarding marker.
func UnwrapForward(payload string) (string, error) {
	if !IsForwarded(payload) {
		return "", ErrNotForwarded
	}
	return payload[len(ForwardMarker):], nil
}
