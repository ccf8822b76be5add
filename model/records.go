package model

// SensorRecord describes one sensor to deploy. Records are the normalized
// input shape shared by the configuration loader and the placement
// optimizer: whichever produced the coordinates, the network consumes the
// same record.
type SensorRecord struct {
	ID            int     `yaml:"id"`
	X             float64 `yaml:"x"`
	Y             float64 `yaml:"y"`
	InitialEnergy float64 `yaml:"initialEnergy"`
	CommRange     float64 `yaml:"commRange"`
	SensingRange  float64 `yaml:"sensingRange"`
	LearningRate  float64 `yaml:"learningRate"`
}

// POIRecord describes one point of interest to deploy.
type POIRecord struct {
	ID            int     `yaml:"id"`
	X             float64 `yaml:"x"`
	Y             float64 `yaml:"y"`
	CriticalLevel int     `yaml:"criticalLevel"`
}

// Placement is one slot of an optimized deployment. Slot indices run
// 0..N-1 and are mapped onto real sensor IDs by the caller.
type Placement struct {
	Slot       int     `yaml:"slot"`
	X          float64 `yaml:"x"`
	Y          float64 `yaml:"y"`
	IsSinkRole bool    `yaml:"isSinkRole"`
}
