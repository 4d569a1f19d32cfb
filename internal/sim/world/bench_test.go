package world

import "testing"

// benchConfig mirrors the performance preset: random walkers that
// never starve on a typical amount of resource.
func benchConfig() Config {
	return Config{
		Size:               40,
		ResourceCount:      1000,
		Population:         []PopulationEntry{{Strategy: "random", Count: 50}},
		InitialEnergyMin:   10000,
		InitialEnergyMax:   20000,
		ReproductionEnergy: 100000,
		MoveRate:           0.001,
		GrowthRate:         85,
		Speed:              10,
		VisionReach:        4,
	}
}

func BenchmarkTick(b *testing.B) {
	w, err := New(benchConfig(), nil)
	if err != nil {
		b.Fatalf("new world: %v", err)
	}
	w.Populate()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Tick()
	}
}

func BenchmarkDigest(b *testing.B) {
	w, err := New(benchConfig(), nil)
	if err != nil {
		b.Fatalf("new world: %v", err)
	}
	w.Populate()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = w.Digest()
	}
}
