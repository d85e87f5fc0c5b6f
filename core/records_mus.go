package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Serializers for the records persisted by the local vector store. This file
// mirrors what cmd/musgen emits; `go generate ./core` rewrites it. Field order
// is part of the on-disk format: append new fields at the end only.
var (
	IDMUS       = idMUS{}
	ChunkMUS    = chunkMUS{}
	ManifestMUS = manifestMUS{}
)

type idMUS struct{}

func (s idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (s idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

// Time values are stored as unix microseconds.
func marshalTime(t time.Time, bs []byte) int {
	if t.IsZero() {
		return varint.Int64.Marshal(0, bs)
	}
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || micros == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	if t.IsZero() {
		return varint.Int64.Size(0)
	}
	return varint.Int64.Size(t.UnixMicro())
}

func marshalInt(v int, bs []byte) int {
	return varint.Int64.Marshal(int64(v), bs)
}

func unmarshalInt(bs []byte) (int, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	return int(v), n, err
}

func sizeInt(v int) int {
	return varint.Int64.Size(int64(v))
}

type chunkMUS struct{}

func (s chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Source, bs[n:])
	n += marshalInt(v.Index, bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += VectorMUS.Marshal(v.Vector, bs[n:])
	n += MetadataMUS.Marshal(v.Metadata, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	return n
}

func (s chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	var m int
	if v.Id, m, err = IDMUS.Unmarshal(bs); err != nil {
		return v, m, err
	}
	n += m
	if v.Source, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Index, m, err = unmarshalInt(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Content, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Vector, m, err = VectorMUS.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Metadata, m, err = MetadataMUS.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.InsertedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	return v, n, nil
}

func (s chunkMUS) Size(v Chunk) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Source)
	size += sizeInt(v.Index)
	size += ord.String.Size(v.Content)
	size += VectorMUS.Size(v.Vector)
	size += MetadataMUS.Size(v.Metadata)
	size += sizeTime(v.InsertedAt)
	return size
}

type manifestMUS struct{}

func (s manifestMUS) Marshal(v Manifest, bs []byte) (n int) {
	n = ord.String.Marshal(v.EmbeddingModel, bs)
	n += marshalInt(v.Dimension, bs[n:])
	n += marshalInt(v.Chunks, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (s manifestMUS) Unmarshal(bs []byte) (v Manifest, n int, err error) {
	var m int
	if v.EmbeddingModel, m, err = ord.String.Unmarshal(bs); err != nil {
		return v, m, err
	}
	n += m
	if v.Dimension, m, err = unmarshalInt(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Chunks, m, err = unmarshalInt(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.CreatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.UpdatedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	return v, n, nil
}

func (s manifestMUS) Size(v Manifest) (size int) {
	size = ord.String.Size(v.EmbeddingModel)
	size += sizeInt(v.Dimension)
	size += sizeInt(v.Chunks)
	size += sizeTime(v.CreatedAt)
	size += sizeTime(v.UpdatedAt)
	return size
}
