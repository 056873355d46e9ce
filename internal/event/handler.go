package event

// Handler receives a decoded event together with its envelope.
type Handler func(env Envelope, ev Event)

// Typed adapts a handler for one payload type. Events of any other type are
// ignored, so a handler registered under the wrong kind never panics.
func Typed[T Event](fn func(env Envelope, ev T)) Handler {
	return func(env Envelope, ev Event) {
		typed, ok := ev.(T)
		if !ok {
			return
		}
		fn(env, typed)
	}
}
