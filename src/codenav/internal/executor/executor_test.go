package executor

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Instantiates the new Executor through fx provider
func fxExecutor(t *testing.T, opts ...Option) (Executor, *observer.ObservedLogs) {
	var e Executor
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core).Sugar()

	fxtest.New(t,
		fx.Provide(
			func() Executor {
				return NewExecutor(append([]Option{WithLogger(logger)}, opts...)...)
			},
		),
		fx.Populate(&e),
	).RequireStart().RequireStop()

	return e, recorded
}

func TestStart(t *testing.T) {
	t.Run("starts and logs", func(t *testing.T) {
		if _, err := exec.LookPath("true"); errors.Is(err, exec.ErrNotFound) {
			t.Skip("no true available")
		}
		e, recorded := fxExecutor(t)

		cmd := exec.Command("true", "1", "2")
		cmd.Dir = "/"
		require.NoError(t, e.Start(cmd))
		require.NoError(t, cmd.Wait())

		logs := recorded.FilterMessage("Exec").All()
		require.Len(t, logs, 1)
		assert.Equal(t, "/", logs[0].ContextMap()["Dir"])
		assert.Equal(t, []interface{}{"1", "2"}, logs[0].ContextMap()["Args"])
		assert.Equal(t, 1, recorded.FilterMessage("Exec started").Len())
	})

	t.Run("start error", func(t *testing.T) {
		e, recorded := fxExecutor(t, WithStartFunc(func(*exec.Cmd) error { return errors.New("denied") }))

		err := e.Start(exec.Command("anything"))
		assert.EqualError(t, err, "denied")
		assert.Equal(t, 1, recorded.FilterMessage("Exec failed").Len())
	})

	t.Run("missing start func", func(t *testing.T) {
		e, _ := fxExecutor(t, WithStartFunc(nil))
		assert.NoError(t, e.Start(exec.Command("anything")))
	})
}

func TestModule(t *testing.T) {
	var e Executor
	fxtest.New(t,
		fx.Supply(zap.NewNop().Sugar()),
		Module,
		fx.Populate(&e),
	).RequireStart().RequireStop()
	assert.NotNil(t, e)
}
