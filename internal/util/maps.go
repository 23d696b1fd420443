package util

// DefaultMap is a map that creates missing values with factory on Get.
type DefaultMap[K comparable, V any] struct {
	internal map[K]V
	factory  func() V
}

func NewDefaultMap[K comparable, V any](factory func() V) *DefaultMap[K, V] {
	return &DefaultMap[K, V]{
		internal: make(map[K]V),
		factory:  factory,
	}
}

func (d *DefaultMap[K, V]) Get(key K) V {
	if val, ok := d.internal[key]; ok {
		return val
	}
	val := d.factory()
	d.internal[key] = val
	return val
}

func (d *DefaultMap[K, V]) Set(key K, value V) {
	d.internal[key] = value
}

// Items returns the underlying map, never nil.
func (d *DefaultMap[K, V]) Items() map[K]V {
	return d.internal
}

// FirstValue returns an arbitrary value of m, if it has one.
func FirstValue[K comparable, V any](m map[K]V) (V, bool) {
	for _, v := range m {
		return v, true
	}
	var zero V
	return zero, false
}
