package common

import "unsafe"

// SliceToBytes views a slice of GPU records (balls, grid cells, entry indices) as raw
// bytes for a buffer write. The result shares memory with data.
//
// Parameters:
//   - data: source slice of any fixed-layout type
//
// Returns:
//   - []byte: byte view of data, or nil if data is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(data[0])) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), size)
}

// StructToBytes views a uniform struct as raw bytes. The result is
// unsafe.Sizeof(*v) long and shares memory with v.
func StructToBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(unsafe.Sizeof(*v)))
}
