package core

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// VectorMUS and MetadataMUS serialize the bare vector and metadata values
// kept outside of chunk records, such as embedding cache entries.
var (
	VectorMUS   = vectorMUS{}
	MetadataMUS = metadataMUS{}
)

type vectorMUS struct{}

func (s vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (s vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	// Each float32 takes four bytes; reject lengths the input cannot hold.
	if length > uint64(len(bs)-n)/4 {
		return nil, n, ErrTruncatedData
	}
	v = make([]float32, length)
	for i := range v {
		f, m, err := raw.Float32.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		v[i] = f
	}
	return v, n, nil
}

func (s vectorMUS) Size(v []float32) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

type metadataMUS struct{}

func (s metadataMUS) Marshal(v map[string]string, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for key, value := range v {
		n += ord.String.Marshal(key, bs[n:])
		n += ord.String.Marshal(value, bs[n:])
	}
	return n
}

func (s metadataMUS) Unmarshal(bs []byte) (v map[string]string, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length == 0 {
		return nil, n, nil
	}
	if length > uint64(len(bs)-n) {
		return nil, n, ErrTruncatedData
	}
	v = make(map[string]string, length)
	for i := uint64(0); i < length; i++ {
		key, m, err := ord.String.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		value, m, err := ord.String.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		v[key] = value
	}
	return v, n, nil
}

func (s metadataMUS) Size(v map[string]string) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for key, value := range v {
		size += ord.String.Size(key)
		size += ord.String.Size(value)
	}
	return size
}
