package ridesim

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/okian/ridesafe/internal/domain/model"
)

// Jitter bounds for generated sensor values.
const (
	accelJitter = 0.15 // m/s² per axis
	speedJitter = 0.05 // fraction of leg speed
)

// Ride is a generated sample sequence.
type Ride struct {
	RunID   string
	Samples []model.RawSample
	// LegEnd[i] is the index one past the last sample of leg i.
	LegEnd []int
}

// SeedFor derives a jitter seed from a run id.
func SeedFor(runID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(runID))
	return h.Sum64()
}

// Generate builds perLeg samples for each leg followed by one crash sample.
// Sample ids are "<runID>-<n>" so reruns never collide.
func Generate(runID string, legs []Leg, perLeg int, crashG float64, seed uint64) Ride {
	if perLeg < 1 {
		perLeg = 1
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	ride := Ride{RunID: runID, Samples: make([]model.RawSample, 0, len(legs)*perLeg+1)}
	for _, leg := range legs {
		for range perLeg {
			speed := leg.SpeedKmh * (1 + speedJitter*(rng.Float64()*2-1))
			ride.Samples = append(ride.Samples, sample(ride.id(), rng, 0, 0, model.StandardGravity, speed))
		}
		ride.LegEnd = append(ride.LegEnd, len(ride.Samples))
	}

	// Most of the impact on the forward axis, the rest vertical.
	total := crashG * model.StandardGravity
	ax := total * 0.8
	az := math.Sqrt(total*total - ax*ax)
	ride.Samples = append(ride.Samples, sample(ride.id(), nil, ax, 0, az, 0))
	return ride
}

func (r *Ride) id() string {
	return fmt.Sprintf("%s-%d", r.RunID, len(r.Samples))
}

func sample(id string, rng *rand.Rand, ax, ay, az, speed float64) model.RawSample {
	if rng != nil {
		ax += accelJitter * (rng.Float64()*2 - 1)
		ay += accelJitter * (rng.Float64()*2 - 1)
		az += accelJitter * (rng.Float64()*2 - 1)
	}
	return model.RawSample{
		ID:       id,
		AX:       &ax,
		AY:       &ay,
		AZ:       &az,
		GPSSpeed: &speed,
	}
}

// Crash returns the crash sample of the ride.
func (r Ride) Crash() model.RawSample {
	return r.Samples[len(r.Samples)-1]
}
