package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	startErr error
	log      *[]string
}

func (r recordingService) Name() string { return r.name }

func (r recordingService) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	*r.log = append(*r.log, "start "+r.name)
	return nil
}

func (r recordingService) Stop(context.Context) error {
	*r.log = append(*r.log, "stop "+r.name)
	return nil
}

func TestManagerOrdering(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", log: &log}))
	require.NoError(t, m.Register(recordingService{name: "b", log: &log}))
	require.Error(t, m.Register(recordingService{name: "a", log: &log}))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
	assert.Equal(t, []string{"a", "b"}, m.Names())
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", log: &log}))
	require.NoError(t, m.Register(recordingService{name: "b", startErr: boom, log: &log}))
	require.NoError(t, m.Register(NoopService{ServiceName: "c"}))

	err := m.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "stop a"}, log)
	assert.NoError(t, m.Stop(context.Background()), "nothing left to stop")
}
