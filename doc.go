// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package smc provides a Sequential Monte Carlo particle-filter engine for
// stochastic programs written with algebraic effects on [code.hybscloud.com/kont].
//
// A program is an ordinary kont computation that performs three effects:
// [Resample] marks a checkpoint, [Uniform] draws from the run's random
// source, and [Score] multiplies the particle's importance weight.
// Runners bind these effects differently: under [RunSMC] a checkpoint
// suspends the particle until every particle of the generation has been
// collected and resampled; under [RunImportance] it is a no-op.
//
// # Architecture
//
//   - Suspension: a checkpoint is a [kont.Suspension] left unconsumed at the
//     dispatch boundary ([code.hybscloud.com/iox.ErrWouldBlock]), wrapped in a one-shot [Checkpoint].
//   - Particles: [Particle] carries weight, age, and the checkpoint. Resampling with
//     replacement resumes the original once and forks duplicates by replaying
//     their recorded draws.
//   - Resampling: [Resampler] strategies [Multinomial] (bucketed, [ResampleUniform]),
//     [Systematic], [Identity], and the [Normalized] wrapper.
//   - Concurrency: [WithWorkers] runs generations on worker goroutines fed by
//     lock-free SPSC queues from [code.hybscloud.com/lfq], with a barrier before resampling.
//
// # API Topologies
//
//   - Operations: [Resample], [Uniform], [Score].
//   - Cont-world: [ResampleThen], [UniformBind], [ScoreThen], [ScoreLogThen], [Loop], [Scan].
//   - Expr-world: [ExprResampleThen], [ExprUniformBind], [ExprScoreThen], [ExprLoop], [ExprScan].
//     Bridge via [Reify]/[Reflect], or [ReifyProgram]/[ReflectProgram] for factories.
//   - Single particle: [Start]/[StartExpr] and [Checkpoint.Resume]; [Exec]/[ExecExpr].
//   - Populations: [RunSMC]/[RunSMCExpr] and [RunImportance]/[RunImportanceExpr]
//     report completions to a [Sink].
//
// # Errors
//
// [ErrUseAfterResume], [ErrInvalidWeight], [ErrRunawayComputation], and
// [ErrReplayDiverged] are reported through error returns. [ErrEmptyResamplePool]
// ends an SMC run as extinction without error.
//
// # Example
//
//	var geometric func() kont.Eff[int]
//	geometric = func() kont.Eff[int] {
//		return smc.ResampleThen(smc.UniformBind(func(u float64) kont.Eff[int] {
//			if u > 0.5 {
//				return smc.ScoreThen(0.9, kont.Map(geometric(), func(n int) int { return n + 1 }))
//			}
//			return kont.Pure(1)
//		}))
//	}
//	rng := rand.New(rand.NewPCG(42, 0))
//	err := smc.RunSMC(geometric, 1000, smc.Multinomial[int](100), rng,
//		func(w float64, n int) { fmt.Println(w, n) })
package smc
