// Package workload produces synthetic patient sensor readings for load tests
// and the built-in simulation mode.
package workload

import (
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/vitalsched/vitalsched/internal/domain/task"
)

// Conditions a generated patient can carry. Condition skews the vitals the
// patient's sensors report.
var Conditions = []string{"Healthy", "Hypertension", "Diabetes", "Cardiac", "Post-Surgery"}

// PatientProfile is the stable baseline for one monitored patient.
type PatientProfile struct {
	PatientID int    `json:"patient_id"`
	Age       int    `json:"age"`
	Condition string `json:"condition"`
}

// Reading is one sensor transmission: the vitals a device reported plus the
// urgency classification derived from them.
type Reading struct {
	PatientID int             `json:"patient_id"`
	Offset    float64         `json:"offset"`
	Vitals    task.VitalSigns `json:"vitals"`
	Urgency   task.Urgency    `json:"urgency"`
	Condition string          `json:"condition"`
}

// readingInterval is the gap between consecutive readings from one patient.
const readingInterval = 30.0

// Generator emits deterministic synthetic readings for a given seed.
type Generator struct {
	rng    *rand.Rand
	logger zerolog.Logger
}

func New(seed int64, logger zerolog.Logger) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger.With().Str("component", "workload").Logger(),
	}
}

// Profile creates a patient baseline with a random condition and age 25-89.
func (g *Generator) Profile(patientID int) PatientProfile {
	return PatientProfile{
		PatientID: patientID,
		Age:       25 + g.rng.Intn(65),
		Condition: Conditions[g.rng.Intn(len(Conditions))],
	}
}

// Generate produces readingsPerPatient readings for each of patientCount
// patients at 30 second intervals, then overwrites roughly 5% of them with
// emergency vitals.
func (g *Generator) Generate(patientCount, readingsPerPatient int) []Reading {
	readings := make([]Reading, 0, patientCount*readingsPerPatient)
	for patientID := 1; patientID <= patientCount; patientID++ {
		profile := g.Profile(patientID)
		for seq := 0; seq < readingsPerPatient; seq++ {
			readings = append(readings, g.reading(profile, seq))
		}
	}
	g.injectEmergencies(readings)

	g.logger.Info().
		Int("patients", patientCount).
		Int("readings", len(readings)).
		Msg("generated synthetic workload")
	return readings
}

func (g *Generator) reading(profile PatientProfile, seq int) Reading {
	vitals := g.Vitals(profile)
	return Reading{
		PatientID: profile.PatientID,
		Offset:    float64(seq) * readingInterval,
		Vitals:    vitals,
		Urgency:   task.ClassifyUrgency(vitals),
		Condition: profile.Condition,
	}
}

// Vitals samples one set of vital signs consistent with the patient's
// condition, with small probabilities of emergency-range readings.
func (g *Generator) Vitals(profile PatientProfile) task.VitalSigns {
	return task.VitalSigns{
		HeartRate:   g.heartRate(profile.Condition),
		SystolicBP:  g.systolicBP(profile.Condition),
		Temperature: g.temperature(profile.Condition),
		SpO2:        g.spO2(profile.Condition),
	}
}

func (g *Generator) heartRate(condition string) int {
	rate := 60 + g.rng.Intn(40)
	switch condition {
	case "Cardiac":
		rate += g.rng.Intn(40)
	case "Post-Surgery":
		rate += g.rng.Intn(30)
	case "Hypertension":
		rate += g.rng.Intn(20)
	}
	if g.rng.Float64() < 0.05 {
		rate = 140 + g.rng.Intn(60)
	}
	if rate > 200 {
		rate = 200
	}
	return rate
}

func (g *Generator) systolicBP(condition string) int {
	bp := 110 + g.rng.Intn(30)
	switch condition {
	case "Hypertension":
		bp += 20 + g.rng.Intn(30)
	case "Post-Surgery":
		if g.rng.Intn(2) == 0 {
			bp -= g.rng.Intn(20)
		}
	}
	if g.rng.Float64() < 0.03 {
		bp = 180 + g.rng.Intn(40)
	}
	if bp < 80 {
		bp = 80
	}
	if bp > 250 {
		bp = 250
	}
	return bp
}

func (g *Generator) temperature(condition string) float64 {
	temp := 36.0 + g.rng.Float64()*2.0
	if condition == "Post-Surgery" && g.rng.Float64() < 0.15 {
		temp += 1 + g.rng.Float64()*2
	}
	if g.rng.Float64() < 0.02 {
		temp = 39 + g.rng.Float64()*2
	}
	// one decimal place, matching sensor resolution
	return float64(int(temp*10+0.5)) / 10.0
}

func (g *Generator) spO2(condition string) int {
	spo2 := 95 + g.rng.Intn(5)
	if condition == "Cardiac" && g.rng.Float64() < 0.1 {
		spo2 -= g.rng.Intn(10)
	}
	if g.rng.Float64() < 0.03 {
		spo2 = 80 + g.rng.Intn(10)
	}
	if spo2 < 70 {
		spo2 = 70
	}
	if spo2 > 100 {
		spo2 = 100
	}
	return spo2
}

// injectEmergencies replaces about one in twenty readings with unambiguous
// emergency vitals so every run exercises the critical path.
func (g *Generator) injectEmergencies(readings []Reading) {
	if len(readings) == 0 {
		return
	}
	count := len(readings) / 20
	if count < 1 {
		count = 1
	}
	for i := 0; i < count; i++ {
		idx := g.rng.Intn(len(readings))
		vitals := task.VitalSigns{
			HeartRate:   180 + g.rng.Intn(20),
			SystolicBP:  200 + g.rng.Intn(30),
			Temperature: 41.0 + g.rng.Float64()*2,
			SpO2:        75 + g.rng.Intn(10),
		}
		readings[idx] = Reading{
			PatientID: readings[idx].PatientID,
			Offset:    readings[idx].Offset,
			Vitals:    vitals,
			Urgency:   task.UrgencyCritical,
			Condition: "Emergency",
		}
	}
	g.logger.Debug().Int("count", count).Msg("injected emergency scenarios")
}
