package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-poster/database"
	"social-poster/models"
	"social-poster/poster"
	"social-poster/scheduler"
)

func TestCronSpec(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"09:00", "0 9 * * *"},
		{"13:30", "30 13 * * *"},
		{"00:00", "0 0 * * *"},
		{"23:59", "59 23 * * *"},
	}
	for _, tt := range tests {
		got, err := scheduler.CronSpec(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCronSpecRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "9", "9:0:0", "24:00", "12:60", "ab:cd", "-1:30"} {
		_, err := scheduler.CronSpec(in)
		assert.Error(t, err, in)
	}
}

func TestStartRejectsBadPostTime(t *testing.T) {
	db, err := database.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := database.NewStore(db)

	cfg := &models.Config{
		PostTimes:       []string{"25:00"},
		ScanInterval:    time.Minute,
		HealthInterval:  time.Hour,
		MaintenanceTime: "02:00",
	}
	d := poster.NewDispatcher(store, nil, nil, cfg)

	s := scheduler.New(d, store, nil, cfg)
	assert.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	db, err := database.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := database.NewStore(db)

	cfg := &models.Config{
		PostTimes:       []string{"09:00", "18:00"},
		ScanInterval:    time.Minute,
		HealthInterval:  time.Hour,
		MaintenanceTime: "02:00",
	}
	d := poster.NewDispatcher(store, nil, nil, cfg)

	s := scheduler.New(d, store, nil, cfg)
	require.NoError(t, s.Start())
	s.Stop()
}
