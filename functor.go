package plugin

// Functor is the capability of plugins that transform a value of one type
// into another value of the same type. Data-processing plugins (filters,
// scalers, smoothers) implement it and hosts fetch them with
// manager.Get[plugin.Functor[T]].
type Functor[T any] interface {
	Plugin

	// Apply transforms input into output of the same type. Apply must be
	// safe to call repeatedly; implementations document any further
	// concurrency guarantees.
	Apply(input T) T
}
