package history

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"time"
)

type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

type Kind string

const (
	KindChat Kind = "chat"
	KindFile Kind = "file"
)

// Entry одна запись журнала переписки
type Entry struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Direction Direction `json:"direction"`
	Kind      Kind      `json:"kind"`
	// Peer адрес собеседника, пустой для исходящих широковещательных сообщений
	Peer     string `json:"peer,omitempty"`
	Username string `json:"username"`
	Body     string `json:"body,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Serializer предоставляет интерфейс для сериализации/десериализации данных
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

// JSONSerializer используется по умолчанию: записи можно читать bbolt-утилитами
type JSONSerializer struct{}

func (s *JSONSerializer) Serialize(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (s *JSONSerializer) Deserialize(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// GobSerializer реализует Serializer используя encoding/gob
type GobSerializer struct{}

func (s *GobSerializer) Serialize(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *GobSerializer) Deserialize(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
