package stats

import (
	"strconv"
	"strings"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// KeyRef is the parsed form of one snapshot key.
type KeyRef struct {
	Field  string
	Entity int
	Tagged bool // false: Field is a general key and Entity is meaningless
}

// ParseKey splits key into an entity-tagged field when it ends in
// "-<id>" with 0 <= id <= maxEntityID. Any other key is general and
// returned verbatim.
func ParseKey(key string, maxEntityID int) KeyRef {
	general := KeyRef{Field: key}

	i := strings.LastIndexByte(key, '-')
	if i <= 0 || i == len(key)-1 || maxEntityID < 0 {
		return general
	}
	field, suffix := key[:i], key[i+1:]

	if len(suffix) > len(strconv.Itoa(maxEntityID)) {
		return general
	}
	if len(suffix) > 1 && suffix[0] == '0' {
		return general
	}
	for j := 0; j < len(suffix); j++ {
		if suffix[j] < '0' || suffix[j] > '9' {
			return general
		}
	}
	id, err := strconv.Atoi(suffix)
	if err != nil || id > maxEntityID {
		return general
	}
	return KeyRef{Field: field, Entity: id, Tagged: true}
}

// Partition is the result of demultiplexing one flat snapshot.
type Partition struct {
	General  model.Snapshot
	Entities map[int]model.Snapshot
}

// Demux partitions snapshot into a general bucket and per-entity buckets.
// Every key lands in exactly one bucket.
func Demux(snapshot model.Snapshot, maxEntityID int) Partition {
	p := Partition{
		General:  make(model.Snapshot, len(snapshot)),
		Entities: make(map[int]model.Snapshot),
	}
	for key, value := range snapshot {
		ref := ParseKey(key, maxEntityID)
		if !ref.Tagged {
			p.General[ref.Field] = value
			continue
		}
		bucket, ok := p.Entities[ref.Entity]
		if !ok {
			bucket = make(model.Snapshot)
			p.Entities[ref.Entity] = bucket
		}
		bucket[ref.Field] = value
	}
	return p
}
