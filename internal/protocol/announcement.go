package protocol

import (
	"encoding/json"
	"fmt"
)

// TypeOnline is the only announcement type peers act upon.
const TypeOnline = "online"

// Announcement is the presence datagram body. Fields are declared in
// lexical order so the compact JSON matches the key order other
// implementations produce.
type Announcement struct {
	IP       string `json:"ip"`
	Type     string `json:"type"`
	Username string `json:"username"`
}

// NewOnline returns the announcement a process broadcasts about itself.
func NewOnline(ip, username string) Announcement {
	return Announcement{
		IP:       ip,
		Type:     TypeOnline,
		Username: username,
	}
}

// EncodeAnnouncement serializes a as compact JSON.
func EncodeAnnouncement(a Announcement) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode announcement: %w", err)
	}
	return data, nil
}

// DecodeAnnouncement parses a datagram. Unknown fields are ignored, the way
// a generic JSON object reader would ignore them.
func DecodeAnnouncement(data []byte) (Announcement, error) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return Announcement{}, fmt.Errorf("%w: %v", ErrMalformedAnnouncement, err)
	}
	return a, nil
}
