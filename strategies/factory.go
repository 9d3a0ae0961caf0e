package strategies

import "fmt"

// builders maps every known strategy name to its constructor, in the order
// strategies should be registered by default.
var builders = []func() Strategy{
	func() Strategy { return NewEMACross() },
	func() Strategy { return NewEMAPullbackReclaim() },
	func() Strategy { return NewRangeBreakoutVolume() },
	func() Strategy { return NewVWAPReclaim() },
	func() Strategy { return NewOpeningRangeBreakout() },
	func() Strategy { return NewBollingerSqueezeBreakout() },
	func() Strategy { return NewRSIFadeVWAPFilter() },
	func() Strategy { return NewVolumeSpikeMomentum() },
	func() Strategy { return NewFakeoutFade() },
	func() Strategy { return NewWickReversal() },
	func() Strategy { return NewMACDTrendFollower() },
}

// NewStrategyByName creates a strategy instance by name.
func NewStrategyByName(name string) (Strategy, error) {
	for _, build := range builders {
		s := build()
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown strategy name: %s (available: %v)", name, AvailableStrategies())
}

// AvailableStrategies returns every known strategy name, in default
// registration order.
func AvailableStrategies() []string {
	names := make([]string, 0, len(builders))
	for _, build := range builders {
		names = append(names, build().Name())
	}
	return names
}

// NewDefaultRegistry builds a Registry with every known strategy registered
// in default order.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, build := range builders {
		if err := r.Register(build()); err != nil {
			return nil, err
		}
	}
	return r, nil
}
