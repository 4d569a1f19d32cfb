package world

// PopulationEntry asks Populate for Count agents of one strategy family.
type PopulationEntry struct {
	Strategy string
	Count    int
}

// Config is consumed already clamped; see internal/sim/tuning for loading.
type Config struct {
	Size int
	Seed int64

	// Initial population.
	ResourceCount    int
	Population       []PopulationEntry
	InitialEnergyMin int
	InitialEnergyMax int

	// Energy economy.
	ResourceEnergy     int
	IdleCost           int
	MoveCost           int
	ReproductionEnergy int
	MoveRate           float64

	// User-tunable at runtime; carried across restarts.
	GrowthRate int
	Speed      int

	// Length of the ray reported in a Vision.
	VisionReach int

	// Run CheckInvariants after every apply phase and panic on failure.
	StrictInvariants bool
}

func DefaultConfig() Config {
	return Config{
		Size:          40,
		ResourceCount: 1000,
		Population: []PopulationEntry{
			{Strategy: "random", Count: 10},
			{Strategy: "noop", Count: 10},
			{Strategy: "tape", Count: 10},
			{Strategy: "looker", Count: 10},
		},
		InitialEnergyMin:   10000,
		InitialEnergyMax:   20000,
		ResourceEnergy:     1000,
		IdleCost:           1,
		MoveCost:           10,
		ReproductionEnergy: 100000,
		MoveRate:           0.005,
		GrowthRate:         85,
		Speed:              9,
		VisionReach:        4,
	}
}

// withDefaults patches zero values that would make the engine misbehave.
func (c Config) withDefaults() Config {
	if c.Size < 1 {
		c.Size = 1
	}
	if c.InitialEnergyMax < c.InitialEnergyMin {
		c.InitialEnergyMax = c.InitialEnergyMin
	}
	c.GrowthRate = min(max(c.GrowthRate, MinGrowthRate), MaxGrowthRate)
	c.Speed = min(max(c.Speed, MinSpeed), MaxSpeed)
	if c.VisionReach < 1 {
		c.VisionReach = 1
	}
	return c
}
