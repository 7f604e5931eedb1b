package utils

// Version of cwmpd from source control, set by the linker.
var Version string = "unknown"

// IdPtr is the pointer version of id: 'a->'a
func IdPtr[T any](value T) *T {
	return &value
}

// Deref returns the pointed value, or def if p is nil.
func Deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
