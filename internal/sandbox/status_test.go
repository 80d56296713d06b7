package sandbox

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func TestDetermineStatus(t *testing.T) {
	tests := []struct {
		name       string
		containers []types.Container
		want       Status
	}{
		{
			name:       "no containers",
			containers: nil,
			want:       StatusStopped,
		},
		{
			name: "all running",
			containers: []types.Container{
				{State: "running"},
				{State: "running"},
				{State: "running"},
			},
			want: StatusRunning,
		},
		{
			name: "partially running",
			containers: []types.Container{
				{State: "running"},
				{State: "exited"},
			},
			want: StatusDegraded,
		},
		{
			name: "all stopped",
			containers: []types.Container{
				{State: "exited"},
				{State: "created"},
			},
			want: StatusStopped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineStatus(tt.containers))
		})
	}
}
