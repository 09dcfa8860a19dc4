package discovery

import (
	"context"

	"lanchat/internal/peers"
	"lanchat/internal/protocol"
)

// Mechanism представляет собой способ узнавать о присутствии узлов в сети
type Mechanism interface {
	// Start запускает механизм. Ошибка привязки сокета возвращается сразу.
	Start(ctx context.Context) error

	// Stop останавливает механизм и ждет завершения его горутин
	Stop() error

	// Name возвращает имя механизма
	Name() string

	// SetOnAnnouncement устанавливает callback для полученных объявлений
	SetOnAnnouncement(callback func(a protocol.Announcement))
}

// Event сообщает о принятом объявлении
type Event struct {
	Peer      peers.Record
	Created   bool
	Mechanism string
}

// Outcome values reported to metrics for each received announcement.
const (
	OutcomeAccepted  = "accepted"
	OutcomeSelf      = "self"
	OutcomeIgnored   = "ignored"
	OutcomeInvalid   = "invalid"
	OutcomeMalformed = "malformed"
)
