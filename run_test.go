// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc_test

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strings"
	"testing"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/smc"
	"code.hybscloud.com/smc/internal/models"
)

// weightedMean returns Σw·r / Σw over integer results.
func weightedMean(ms []measurement[int]) float64 {
	var num, den float64
	for _, m := range ms {
		num += m.weight * float64(m.result)
		den += m.weight
	}
	return num / den
}

// drawOnce passes one checkpoint and returns a single draw.
func drawOnce() kont.Eff[float64] {
	return smc.ResampleThen(smc.UniformBind(func(u float64) kont.Eff[float64] {
		return smc.ScoreThen(u, kont.Pure(u))
	}))
}

// threeDraws passes a checkpoint before each of three draws and returns them.
func threeDraws() kont.Eff[[3]float64] {
	return smc.ResampleThen(smc.UniformBind(func(u1 float64) kont.Eff[[3]float64] {
		return smc.ResampleThen(smc.UniformBind(func(u2 float64) kont.Eff[[3]float64] {
			return smc.ResampleThen(smc.UniformBind(func(u3 float64) kont.Eff[[3]float64] {
				return kont.Pure([3]float64{u1, u2, u3})
			}))
		}))
	}))
}

func TestRunSMCCompletesEveryParticle(t *testing.T) {
	var ms []measurement[int]
	err := smc.RunSMC(models.Geometric(0.5, 1), 200, nil, newRand(42), record(&ms))
	if err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if len(ms) != 200 {
		t.Fatalf("measurements got %d, want 200", len(ms))
	}
	for _, m := range ms {
		if m.result < 1 || m.weight != 1 {
			t.Fatalf("got measurement %+v, want result >= 1 with weight 1", m)
		}
	}
}

func TestRunSMCIdentityMatchesImportance(t *testing.T) {
	// One checkpoint per path: the draw order is the same under both runners.
	var smcOut, impOut []measurement[float64]
	if err := smc.RunSMC(drawOnce, 100, smc.Identity[float64](), newRand(42), record(&smcOut)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if err := smc.RunImportance(drawOnce, 100, newRand(42), record(&impOut)); err != nil {
		t.Fatalf("RunImportance: %v", err)
	}
	if !slices.Equal(smcOut, impOut) {
		t.Fatalf("smc and importance measurements differ:\n%v\n%v", smcOut, impOut)
	}
}

func TestRunSMCIdentityGeometric(t *testing.T) {
	factor := math.Log(1.5)
	want := models.GeometricMean(0.5, factor)

	var smcOut, impOut []measurement[int]
	if err := smc.RunSMC(models.Geometric(0.5, factor), 1000, smc.Identity[int](), newRand(42), record(&smcOut)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if err := smc.RunImportance(models.Geometric(0.5, factor), 1000, newRand(42), record(&impOut)); err != nil {
		t.Fatalf("RunImportance: %v", err)
	}
	for name, ms := range map[string][]measurement[int]{"smc": smcOut, "importance": impOut} {
		if len(ms) != 1000 {
			t.Fatalf("%s measurements got %d, want 1000", name, len(ms))
		}
		if got := weightedMean(ms); math.Abs(got-want) > 0.05*want {
			t.Fatalf("%s weighted mean got %v, want %v within 5%%", name, got, want)
		}
	}
}

func TestRunSMCNormalizedGeometric(t *testing.T) {
	factor := math.Log(1.5)
	want := models.GeometricMean(0.5, factor)
	var ms []measurement[int]
	r := smc.Normalized(smc.Multinomial[int](smc.DefaultBucketMultiplier))
	if err := smc.RunSMC(models.Geometric(0.5, factor), 1000, r, newRand(42), record(&ms)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if len(ms) != 1000 {
		t.Fatalf("measurements got %d, want 1000", len(ms))
	}
	if got := weightedMean(ms); math.Abs(got-want) > 0.05*want {
		t.Fatalf("weighted mean got %v, want %v within 5%%", got, want)
	}
}

func TestRunSMCExprMatchesCont(t *testing.T) {
	factor := math.Log(1.5)
	var cont, expr []measurement[int]
	if err := smc.RunSMC(models.Geometric(0.5, factor), 300, nil, newRand(7), record(&cont)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if err := smc.RunSMCExpr(models.GeometricExpr(0.5, factor), 300, nil, newRand(7), record(&expr)); err != nil {
		t.Fatalf("RunSMCExpr: %v", err)
	}
	if !slices.Equal(cont, expr) {
		t.Fatal("Cont and Expr runs differ")
	}
}

func TestRunSMCDeterministic(t *testing.T) {
	run := func() []measurement[[3]float64] {
		var ms []measurement[[3]float64]
		if err := smc.RunSMC(threeDraws, 64, nil, newRand(99), record(&ms)); err != nil {
			t.Fatalf("RunSMC: %v", err)
		}
		return ms
	}
	if a, b := run(), run(); !slices.Equal(a, b) {
		t.Fatal("runs with the same seed differ")
	}
}

func TestRunSMCDuplicatesFork(t *testing.T) {
	// Every generation keeps the first particle three times.
	triple := func(ps []smc.Particle[[3]float64], _ smc.Source) ([]smc.Particle[[3]float64], error) {
		return []smc.Particle[[3]float64]{ps[0], ps[0], ps[0]}, nil
	}
	var ms []measurement[[3]float64]
	if err := smc.RunSMC(threeDraws, 4, triple, newRand(42), record(&ms)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("measurements got %d, want 3", len(ms))
	}
	// Forks share the draws made before the last resampling; the draw
	// after it is fresh for each copy.
	first := ms[0].result
	for i, m := range ms {
		if m.result[0] != first[0] || m.result[1] != first[1] {
			t.Fatalf("measurement %d got prefix %v, want %v", i, m.result[:2], first[:2])
		}
	}
	if ms[0].result[2] == ms[1].result[2] || ms[1].result[2] == ms[2].result[2] {
		t.Fatalf("forks repeated the fresh draw: %v", ms)
	}
}

func TestRunSMCPopulationGrowth(t *testing.T) {
	double := func(ps []smc.Particle[float64], _ smc.Source) ([]smc.Particle[float64], error) {
		return append(slices.Clone(ps), ps...), nil
	}
	var ms []measurement[float64]
	if err := smc.RunSMC(drawOnce, 4, double, newRand(42), record(&ms)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if len(ms) != 8 {
		t.Fatalf("measurements got %d, want 8", len(ms))
	}
}

func TestRunSMCWeightAndAge(t *testing.T) {
	var ages [][]uint
	var weights [][]float64
	observe := func(ps []smc.Particle[float64], _ smc.Source) ([]smc.Particle[float64], error) {
		var a []uint
		var w []float64
		for _, p := range ps {
			a = append(a, p.Age)
			w = append(w, p.Weight)
		}
		ages = append(ages, a)
		weights = append(weights, w)
		return ps, nil
	}
	var ms []measurement[float64]
	if err := smc.RunSMC(checkpoints(3, 0.5), 5, observe, newRand(42), record(&ms)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if len(ages) != 3 {
		t.Fatalf("generations got %d, want 3", len(ages))
	}
	for g := range ages {
		wantW := math.Pow(0.5, float64(g+1))
		for i := range ages[g] {
			if ages[g][i] != uint(g) {
				t.Fatalf("generation %d particle %d age got %d, want %d", g, i, ages[g][i], g)
			}
			if weights[g][i] != wantW {
				t.Fatalf("generation %d particle %d weight got %v, want %v", g, i, weights[g][i], wantW)
			}
		}
	}
	for _, m := range ms {
		if m.weight != 0.125 {
			t.Fatalf("final weight got %v, want 0.125", m.weight)
		}
	}
}

func TestRunSMCGenerationMajorOrder(t *testing.T) {
	// Results of 0 complete in generation 0, results of 1 one generation later.
	prog := func() kont.Eff[int] {
		return smc.UniformBind(func(u float64) kont.Eff[int] {
			if u < 0.5 {
				return kont.Pure(0)
			}
			return smc.ResampleThen(kont.Pure(1))
		})
	}
	var ms []measurement[int]
	if err := smc.RunSMC(prog, 100, smc.Identity[int](), newRand(42), record(&ms)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if len(ms) != 100 {
		t.Fatalf("measurements got %d, want 100", len(ms))
	}
	if !slices.IsSortedFunc(ms, func(a, b measurement[int]) int { return a.result - b.result }) {
		t.Fatal("measurements are not in generation-major order")
	}
}

func TestRunSMCExtinction(t *testing.T) {
	// Particles that draw below one half complete before the barrier;
	// the rest are weighted to zero and die out.
	prog := func() kont.Eff[int] {
		return smc.UniformBind(func(u float64) kont.Eff[int] {
			if u < 0.5 {
				return kont.Pure(1)
			}
			return smc.ScoreThen(0, smc.ResampleThen(kont.Pure(2)))
		})
	}
	var ms []measurement[int]
	if err := smc.RunSMC(prog, 100, nil, newRand(42), record(&ms)); err != nil {
		t.Fatalf("extinction got %v, want nil", err)
	}
	if len(ms) == 0 || len(ms) == 100 {
		t.Fatalf("measurements got %d, want some but not all", len(ms))
	}
	for _, m := range ms {
		if m.result != 1 {
			t.Fatalf("extinct particle reported: %+v", m)
		}
	}
}

func TestRunSMCEmptyResampleEndsRun(t *testing.T) {
	none := func([]smc.Particle[float64], smc.Source) ([]smc.Particle[float64], error) {
		return nil, nil
	}
	var ms []measurement[float64]
	if err := smc.RunSMC(drawOnce, 10, none, newRand(42), record(&ms)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if len(ms) != 0 {
		t.Fatalf("measurements got %d, want 0", len(ms))
	}
}

func TestRunSMCResamplerError(t *testing.T) {
	boom := errors.New("boom")
	fail := func([]smc.Particle[float64], smc.Source) ([]smc.Particle[float64], error) {
		return nil, boom
	}
	err := smc.RunSMC(drawOnce, 10, fail, newRand(42), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestRunSMCInvalidWeight(t *testing.T) {
	prog := func() kont.Eff[int] {
		return smc.ResampleThen(smc.ScoreThen(math.NaN(), kont.Pure(0)))
	}
	err := smc.RunSMC(prog, 10, nil, newRand(42), nil)
	if !errors.Is(err, smc.ErrInvalidWeight) {
		t.Fatalf("got %v, want ErrInvalidWeight", err)
	}
}

func TestRunSMCInvalidParticleCount(t *testing.T) {
	for _, n := range []int{0, -3} {
		if err := smc.RunSMC(drawOnce, n, nil, newRand(1), nil); !errors.Is(err, smc.ErrInvalidParticleCount) {
			t.Fatalf("n=%d got %v, want ErrInvalidParticleCount", n, err)
		}
	}
}

func TestRunSMCRunaway(t *testing.T) {
	prog := func() kont.Eff[int] { return smc.ResampleThen(spin()) }
	err := smc.RunSMC(prog, 4, nil, newRand(42), nil, smc.WithMaxSteps(1000))
	if !errors.Is(err, smc.ErrRunawayComputation) {
		t.Fatalf("got %v, want ErrRunawayComputation", err)
	}
}

func TestRunSMCReplayDiverged(t *testing.T) {
	// Only the first execution reaches a second checkpoint; a replay
	// completes early.
	calls := 0
	prog := func() kont.Eff[int] {
		calls++
		if calls == 1 {
			return smc.ResampleThen(smc.ResampleThen(kont.Pure(1)))
		}
		return kont.Pure(0)
	}
	twice := func(ps []smc.Particle[int], _ smc.Source) ([]smc.Particle[int], error) {
		return []smc.Particle[int]{ps[0], ps[0]}, nil
	}
	err := smc.RunSMC(prog, 1, twice, newRand(42), nil)
	if !errors.Is(err, smc.ErrReplayDiverged) {
		t.Fatalf("got %v, want ErrReplayDiverged", err)
	}
}

func TestRunSMCDropsResumedParticle(t *testing.T) {
	// A resampler that resumes a checkpoint breaks its contract; the
	// particle is dropped and the others are unaffected.
	steal := func(ps []smc.Particle[int], _ smc.Source) ([]smc.Particle[int], error) {
		ps[0].Checkpoint().Resume()
		return ps, nil
	}
	prog := func() kont.Eff[int] { return smc.ResampleThen(kont.Pure(1)) }
	var ms []measurement[int]
	if err := smc.RunSMC(prog, 5, steal, newRand(42), record(&ms)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	if len(ms) != 4 {
		t.Fatalf("measurements got %d, want 4", len(ms))
	}
}

func TestRunSMCPanicPropagates(t *testing.T) {
	prog := func() kont.Eff[int] {
		return smc.ResampleThen(smc.UniformBind(func(float64) kont.Eff[int] {
			panic("user fault")
		}))
	}
	defer func() {
		if r := recover(); r != "user fault" {
			t.Fatalf("recovered %v, want user fault", r)
		}
	}()
	smc.RunSMC(prog, 3, nil, newRand(42), nil)
	t.Fatal("expected panic")
}

func TestRunSMCWithLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if err := smc.RunSMC(checkpoints(2, 1), 8, nil, newRand(42), nil, smc.WithLogger(log)); err != nil {
		t.Fatalf("RunSMC: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"smc run started", "smc generation", "generation=2", "smc run finished", "completed=8"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRunIDLabelsLog(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	opts := []smc.Option{smc.WithLogger(log), smc.WithRunID("calib-7")}
	if err := smc.RunImportance(checkpoints(1, 1), 4, newRand(1), nil, opts...); err != nil {
		t.Fatalf("RunImportance: %v", err)
	}
	if !strings.Contains(buf.String(), "run=calib-7") {
		t.Fatalf("log missing run id:\n%s", buf.String())
	}
}

func TestRunSMCWeightOverflow(t *testing.T) {
	// One particle of ten overflows its weight before the first checkpoint.
	started := 0
	prog := func() kont.Eff[int] {
		started++
		if started == 4 {
			return smc.ScoreThen(1e300, smc.ScoreThen(1e300, smc.ResampleThen(kont.Pure(1))))
		}
		return smc.ResampleThen(kont.Pure(0))
	}
	var ms []measurement[int]
	err := smc.RunSMC(prog, 10, nil, newRand(42), record(&ms))
	if !errors.Is(err, smc.ErrInvalidWeight) {
		t.Fatalf("got %v, want ErrInvalidWeight", err)
	}
}
