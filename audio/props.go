package audio

import (
	"fmt"
	"sync/atomic"
)

// Props stores mixer configuration that the render thread reads without
// locks. All properties must be registered before any reads take place.
type Props struct {
	properties map[string]*atomic.Value
	setters    map[string]setter
}

func NewProps() *Props {
	return &Props{
		properties: make(map[string]*atomic.Value),
		setters:    make(map[string]setter),
	}
}

// Set updates the property with value. The key has to be registered first
// using Register.
func (p *Props) Set(key string, value interface{}) error {
	prop, ok := p.properties[key]
	if !ok {
		return fmt.Errorf("unknown property %s", key)
	}
	set := p.setters[key]
	if err := set(value, prop); err != nil {
		return fmt.Errorf("set property %s: %w", key, err)
	}
	return nil
}

func (p *Props) Get(key string) (interface{}, error) {
	prop, ok := p.properties[key]
	if !ok {
		return nil, fmt.Errorf("unknown property %s", key)
	}
	return prop.Load(), nil
}

// Register adds a new property.
func (p *Props) Register(key string, set setter, init interface{}) (*atomic.Value, error) {
	var prop atomic.Value
	p.properties[key] = &prop
	p.setters[key] = set
	return &prop, set(init, &prop)
}

func (p *Props) MustRegister(key string, set setter, init interface{}) *atomic.Value {
	prop, err := p.Register(key, set, init)
	if err != nil {
		panic(err)
	}
	return prop
}

type setter func(val interface{}, dest *atomic.Value) error

// setFloat64 clamps out-of-range values instead of rejecting them: a knob
// turned too far should pin, not error.
func setFloat64(min, max float64) setter {
	return func(v interface{}, dest *atomic.Value) error {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int:
			f = float64(n)
		default:
			return fmt.Errorf("value is not a float64: %v", v)
		}
		if f < min {
			f = min
		}
		if f > max {
			f = max
		}
		dest.Store(f)
		return nil
	}
}

func setBool(v interface{}, dest *atomic.Value) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("value is not a bool: %v", v)
	}
	dest.Store(b)
	return nil
}
