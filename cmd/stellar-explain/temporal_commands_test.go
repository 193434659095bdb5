package main

import (
	"errors"
	"testing"
	"time"

	"github.com/brojonat/stellar-explain/service/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// useMockScheduler points the temporal commands at a MockScheduler for the
// duration of the test.
func useMockScheduler(t *testing.T) *temporal.MockScheduler {
	t.Helper()
	mock := temporal.NewMockScheduler()
	original := newScheduler
	newScheduler = func(*cli.Context) (temporal.Scheduler, func(), error) {
		return mock, func() {}, nil
	}
	t.Cleanup(func() { newScheduler = original })
	return mock
}

func TestArchiveCommand(t *testing.T) {
	mock := useMockScheduler(t)

	stdout, _, err := runApp(t, "temporal", "archive", "--limit", "25", testAccount)
	require.NoError(t, err)

	assert.Contains(t, stdout, "archive-account-"+testAccount)
	assert.Equal(t, []temporal.ArchiveAccountInput{{Address: testAccount, Limit: 25}}, mock.Started())
}

func TestArchiveCommand_WaitNeedsTemporal(t *testing.T) {
	useMockScheduler(t)

	_, _, err := runApp(t, "temporal", "archive", "--wait", testAccount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot wait")
}

func TestArchiveCommand_StartError(t *testing.T) {
	mock := useMockScheduler(t)
	mock.SetStartError(errors.New("workflow already running"))

	_, _, err := runApp(t, "temporal", "archive", testAccount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestScheduleCommand(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantErr      string
		wantInterval time.Duration
	}{
		{
			name:         "default interval",
			args:         []string{"temporal", "schedule", testAccount},
			wantInterval: time.Hour,
		},
		{
			name:         "custom interval",
			args:         []string{"temporal", "schedule", "--interval", "15m", testAccount},
			wantInterval: 15 * time.Minute,
		},
		{
			name:    "interval too short",
			args:    []string{"temporal", "schedule", "--interval", "10s", testAccount},
			wantErr: "at least 1m",
		},
		{
			name:    "missing address",
			args:    []string{"temporal", "schedule"},
			wantErr: "account address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := useMockScheduler(t)

			_, _, err := runApp(t, tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, 0, mock.ScheduleCount())
				return
			}
			require.NoError(t, err)

			interval, ok := mock.GetScheduleInterval(testAccount)
			require.True(t, ok)
			assert.Equal(t, tt.wantInterval, interval)
		})
	}
}

func TestUnscheduleCommand(t *testing.T) {
	useMockScheduler(t)

	_, _, err := runApp(t, "temporal", "schedule", testAccount)
	require.NoError(t, err)

	stdout, _, err := runApp(t, "temporal", "unschedule", testAccount)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Unscheduled")

	_, _, err = runApp(t, "temporal", "unschedule", testAccount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
