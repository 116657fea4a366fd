package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopsched/internal/compiler"
	"github.com/roach88/loopsched/internal/ir"
	"github.com/roach88/loopsched/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func tiledMatmul() *ir.Kernel {
	return testutil.NewKernel("matmul").
		Parallel("g", "g.0").
		Parallel("lid", "l.0").
		Iname("k").
		Iname("kk", testutil.Inside("k")).
		Local("tile").
		Private("acc").
		Insn("init", "acc", testutil.Within("g", "lid")).
		Insn("fetch", "tile", testutil.Within("g", "lid", "k"), testutil.Reading("a")).
		Insn("mul", "acc", testutil.Within("g", "lid", "k", "kk"), testutil.After("fetch", "init"), testutil.Reading("acc", "tile", "b")).
		Insn("store", "c", testutil.Within("g", "lid"), testutil.After("mul"), testutil.Reading("acc")).
		Build()
}

func TestGenerate_TiledMatmul(t *testing.T) {
	res, err := First(context.Background(), tiledMatmul(), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, "init <k> | fetch | <kk> mul </kk> </k> store", ir.DumpSchedule(res.Schedule))
	assert.Empty(t, res.OwedBarriers)
	assert.False(t, res.Boosted)
	assert.Equal(t, int64(1), res.Seq)
	assert.Equal(t, res.Schedule, res.Kernel.Schedule)
}

func TestGenerate_WriteWriteScenario(t *testing.T) {
	k := testutil.NewKernel("ww").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("lid")).
		Insn("b", "s", testutil.Within("lid"), testutil.After("a")).
		Build()

	results, err := Collect(context.Background(), k, 0, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a | b", ir.DumpSchedule(results[0].Schedule))
	assert.Equal(t, 1, results[0].Schedule.BarrierCount())
}

func TestGenerate_WarnsAboutOwedBarriers(t *testing.T) {
	k := testutil.NewKernel("unread").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("lid")).
		Build()

	var logs bytes.Buffer
	res, err := First(context.Background(), k, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	assert.Equal(t, "a", ir.DumpSchedule(res.Schedule))
	assert.Equal(t, []string{"a"}, res.OwedBarriers)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "barrier insertion finished without inserting barriers")
	assert.Contains(t, logs.String(), "instructions=a")
}

func TestGenerate_BoostFallback(t *testing.T) {
	res, err := First(context.Background(), breakableKernel(false), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.True(t, res.Boosted)
	assert.Equal(t, "<i> a b c </i>", ir.DumpSchedule(res.Schedule))
}

func TestGenerate_NoSchedule(t *testing.T) {
	_, err := First(context.Background(), breakableKernel(false),
		WithoutBoostFallback(), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.True(t, IsNoScheduleError(err))

	var se *ScheduleError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "split", se.Kernel)
	assert.Equal(t, "<i> a", se.Details["longest_dead_end"])
	assert.Equal(t, "0", se.Details["successes"])
}

func TestGenerate_DependencyCycleHasNoSchedule(t *testing.T) {
	k := testutil.NewKernel("cycle").
		Insn("a", "x", testutil.After("b")).
		Insn("b", "y", testutil.After("a")).
		Build()

	_, err := First(context.Background(), k, WithLogger(quietLogger()))
	assert.True(t, IsNoScheduleError(err))
}

func TestGenerate_InteractiveReplay(t *testing.T) {
	var trace bytes.Buffer
	pauses := 0
	rec := NewRecorder(WithTrace(&trace), WithInteractive(func() { pauses++ }))

	_, err := First(context.Background(), breakableKernel(false),
		WithoutBoostFallback(), WithRecorder(rec), WithLogger(quietLogger()))
	require.Error(t, err)

	assert.Contains(t, trace.String(), "LONGEST DEAD END: <i> a")
	assert.Contains(t, trace.String(), `cannot leave "i" because "c" still depends on it`)
	assert.Positive(t, pauses)

	var se *ScheduleError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "2", se.Details["dead_ends"], "replay does not inflate the statistics")
}

func TestGenerate_PreprocessError(t *testing.T) {
	k := testutil.NewKernel("bad").
		Insn("a", "x", testutil.Within("missing")).
		Build()

	_, err := First(context.Background(), k, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.True(t, compiler.IsValidationError(err))
	assert.Contains(t, err.Error(), "prepare kernel bad")
}

func TestGenerate_NilKernel(t *testing.T) {
	var res Result
	var err error
	require.NotPanics(t, func() {
		res, err = First(context.Background(), nil, WithLogger(quietLogger()))
	})
	require.ErrorContains(t, err, "nil kernel")
	assert.Empty(t, res.Schedule)
}

func TestGenerate_CustomPreprocessor(t *testing.T) {
	called := false
	k := testutil.NewKernel("flat").Insn("a", "x").Build()

	res, err := First(context.Background(), k,
		WithLogger(quietLogger()),
		WithPreprocessor(func(k *ir.Kernel) (*ir.Kernel, error) {
			called = true
			return k, nil
		}))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "a", ir.DumpSchedule(res.Schedule))
}

func TestGenerate_LoopPriorityOption(t *testing.T) {
	k := testutil.NewKernel("nest").
		Iname("i").
		Iname("j").
		Insn("a", "t", testutil.Within("i", "j")).
		LoopPriority("i").
		Build()

	res, err := First(context.Background(), k, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "<i> <j> a </j> </i>", ir.DumpSchedule(res.Schedule))

	res, err = First(context.Background(), k, WithLoopPriority([]string{"j"}), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "<j> <i> a </i> </j>", ir.DumpSchedule(res.Schedule))
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := First(ctx, tiledMatmul(), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollect_Limit(t *testing.T) {
	b := testutil.NewKernel("wide")
	for _, name := range []string{"i", "j", "k"} {
		b.Iname(name).Insn("w"+name, "t"+name, testutil.Within(name))
	}

	clock := &Clock{}
	results, err := Collect(context.Background(), b.Build(), 4, WithLogger(quietLogger()), WithClock(clock))
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, res := range results {
		assert.Equal(t, int64(i+1), res.Seq)
	}
	assert.Equal(t, int64(4), clock.Current())
}

func TestGenerate_EverySchedulePassesVerification(t *testing.T) {
	kernels := []*ir.Kernel{
		tiledMatmul(),
		breakableKernel(true),
		breakableKernel(false),
		testutil.NewKernel("stencil").
			Iname("i").
			Iname("j").
			Parallel("lid", "l.0").
			Local("buf").
			Insn("load", "buf", testutil.Within("i", "lid"), testutil.Reading("u")).
			Insn("smooth", "v", testutil.Within("i", "j", "lid"), testutil.After("load"), testutil.Reading("buf")).
			Insn("reset", "buf", testutil.Within("i", "lid"), testutil.After("smooth")).
			Build(),
	}

	for _, k := range kernels {
		t.Run(k.Name, func(t *testing.T) {
			results, err := Collect(context.Background(), k, 50, WithLogger(quietLogger()))
			require.NoError(t, err)
			require.NotEmpty(t, results)
			for _, res := range results {
				assert.NoError(t, VerifySchedule(res.Kernel, res.Schedule), ir.DumpSchedule(res.Schedule))
			}
		})
	}
}
