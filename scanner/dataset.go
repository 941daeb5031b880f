package scanner

import (
	"context"
	"io"

	"github.com/teranos/logtap/scanner/protocol"
)

// Rule is one named query
type Rule = protocol.Rule

// DatasetKind says where a scan's data lives
type DatasetKind int

const (
	DatasetNone DatasetKind = iota
	DatasetInMemory
	DatasetStored
)

func (k DatasetKind) String() string {
	switch k {
	case DatasetInMemory:
		return "in_memory"
	case DatasetStored:
		return "stored"
	default:
		return "none"
	}
}

// DatasetRef is either an in-memory value or the key of a stored dataset.
// The zero value refers to no dataset.
type DatasetRef struct {
	kind  DatasetKind
	value string
}

// InMemory refers to data held directly by the session
func InMemory(value string) DatasetRef {
	return DatasetRef{kind: DatasetInMemory, value: value}
}

// Stored refers to a dataset in the blob store
func Stored(key string) DatasetRef {
	return DatasetRef{kind: DatasetStored, value: key}
}

// DatasetFromStart picks the dataset a start command refers to
func DatasetFromStart(s protocol.Start) DatasetRef {
	switch {
	case s.DataLocation != nil:
		return Stored(s.DataLocation.Key)
	case s.Data != nil:
		return InMemory(*s.Data)
	default:
		return DatasetRef{}
	}
}

func (d DatasetRef) Kind() DatasetKind { return d.kind }

// Value is the in-memory data; empty for stored datasets
func (d DatasetRef) Value() string {
	if d.kind != DatasetInMemory {
		return ""
	}
	return d.value
}

// Key is the blob store key; empty for in-memory datasets
func (d DatasetRef) Key() string {
	if d.kind != DatasetStored {
		return ""
	}
	return d.value
}

// BlobSource opens a fresh stream over a stored dataset on every call
type BlobSource interface {
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
}
