package peers

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrSelfAddress  = errors.New("peers: local address cannot be a peer")
	ErrEmptyAddress = errors.New("peers: empty address")
)

// Record описывает известный узел сети
type Record struct {
	Address string
	Name    string
	Port    int
}

// Directory хранит известные узлы по адресу. Записи никогда не удаляются.
type Directory struct {
	sync.RWMutex
	local string
	peers map[string]Record
}

// NewDirectory создает справочник, который отказывается хранить local
func NewDirectory(local string) *Directory {
	return &Directory{
		local: local,
		peers: make(map[string]Record),
	}
}

// Upsert добавляет запись или обновляет имя и порт существующей.
// created сообщает, что адрес встретился впервые.
func (d *Directory) Upsert(address, name string, port int) (created bool, err error) {
	if address == "" {
		return false, ErrEmptyAddress
	}
	if address == d.local {
		return false, ErrSelfAddress
	}

	d.Lock()
	defer d.Unlock()

	_, exists := d.peers[address]
	d.peers[address] = Record{Address: address, Name: name, Port: port}

	return !exists, nil
}

func (d *Directory) Get(address string) (rec Record, found bool) {
	d.RLock()
	defer d.RUnlock()

	rec, found = d.peers[address]
	return
}

// Snapshot возвращает копию записей, отсортированную по адресу
func (d *Directory) Snapshot() []Record {
	d.RLock()
	out := make([]Record, 0, len(d.peers))
	for _, rec := range d.peers {
		out = append(out, rec)
	}
	d.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out
}

// First возвращает первую запись снимка. Ее считают ретранслятором файлов.
func (d *Directory) First() (Record, bool) {
	snapshot := d.Snapshot()
	if len(snapshot) == 0 {
		return Record{}, false
	}
	return snapshot[0], true
}

func (d *Directory) Len() int {
	d.RLock()
	defer d.RUnlock()
	return len(d.peers)
}

func (d *Directory) Local() string {
	return d.local
}
