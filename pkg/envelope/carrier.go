package envelope

// Carrier adapts Headers to otel's propagation.TextMapCarrier, so trace
// context can be injected/extracted directly against an envelope's header
// set without an intermediate map copy.
type Carrier struct {
	headers *Headers
}

// NewCarrier wraps headers for use with a TextMapPropagator.
func NewCarrier(headers *Headers) Carrier {
	return Carrier{headers: headers}
}

func (c Carrier) Get(key string) string {
	return c.headers.GetString(key)
}

func (c Carrier) Set(key, value string) {
	c.headers.SetString(key, value)
}

func (c Carrier) Keys() []string {
	return c.headers.Keys()
}
