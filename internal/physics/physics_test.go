package physics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-engine/internal/envelope"
	"scene-engine/internal/logger"
)

func startPhysics(t *testing.T, tickHz float64) (inbox, game, engine *envelope.Mailbox) {
	t.Helper()
	inbox = envelope.NewMailbox(Name)
	game = envelope.NewMailbox("game")
	engine = envelope.NewMailbox("engine")
	p := New(Options{Inbox: inbox, Game: game, Engine: engine, TickHz: tickHz, Log: logger.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return inbox, game, engine
}

func post(t *testing.T, mb *envelope.Mailbox, subject envelope.Subject, data any) {
	t.Helper()
	require.NoError(t, envelope.Post(mb, "test", envelope.ChannelPhysics, subject, data))
}

func TestStepSendsTransformsToGame(t *testing.T) {
	inbox, game, _ := startPhysics(t, 60)
	post(t, inbox, envelope.SyncBodies, envelope.Bodies{Bodies: []envelope.Body{
		{ID: "ball", Position: [3]float32{0, 10, 0}, Rotation: [4]float32{0, 0, 0, 1}},
		{ID: "ground", Static: true},
	}})
	post(t, inbox, envelope.StepOnce, envelope.Step{Dt: 0.5})

	require.Eventually(t, func() bool { return game.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	env := game.Drain()[0]
	assert.Equal(t, envelope.Transforms, env.Subject)
	assert.Equal(t, envelope.ChannelScene, env.Channel)
	poses := env.Data.(envelope.Poses)
	require.Len(t, poses.Poses, 1)
	assert.Equal(t, "ball", poses.Poses[0].ID)
	assert.Less(t, poses.Poses[0].Position[1], float32(10))
}

func TestStartStopTicker(t *testing.T) {
	inbox, game, _ := startPhysics(t, 200)
	post(t, inbox, envelope.BodyAdded, envelope.BodyData{Body: envelope.Body{ID: "ball", Position: [3]float32{0, 10, 0}}})
	post(t, inbox, envelope.Start, envelope.Signal{})
	require.Eventually(t, func() bool { return game.Len() >= 3 }, 2*time.Second, time.Millisecond)

	post(t, inbox, envelope.Stop, envelope.Signal{})
	time.Sleep(50 * time.Millisecond)
	game.Drain()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, game.Len())
}

func TestInvalidStepReportsError(t *testing.T) {
	inbox, _, engine := startPhysics(t, 60)
	post(t, inbox, envelope.StepOnce, envelope.Step{Dt: -1})
	post(t, inbox, envelope.BodyRemoved, envelope.Target{ID: "nothing"})

	require.Eventually(t, func() bool { return engine.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	report := engine.Drain()[0].Data.(envelope.ErrorData)
	assert.Equal(t, Name, report.Context)
	assert.Equal(t, envelope.StepOnce, report.Subject)
}
