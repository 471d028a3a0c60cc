package di

// Token names a service and carries its type.
type Token[T any] struct {
	name string
}

// NewToken creates a token for a service of type T.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the registration name.
func (t Token[T]) Name() string {
	return t.name
}

// RegisterToken registers a lazily built service under the token.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves the service registered under the token.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	return sr.Get(token.name).(T)
}
