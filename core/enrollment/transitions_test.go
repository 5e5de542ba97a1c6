package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_next(t *testing.T) {
	tests := []struct {
		from    Status
		ev      event
		want    Status
		wantErr string
	}{
		{from: StatusPending, ev: eventResubmit, want: StatusPending},
		{from: StatusPending, ev: eventVerify, want: StatusActive},
		{from: StatusPending, ev: eventReject, want: StatusCancelled},
		{from: StatusPending, ev: eventProgress, wantErr: "progress update is not allowed on a pending enrollment"},
		{from: StatusActive, ev: eventProgress, want: StatusActive},
		{from: StatusActive, ev: eventComplete, want: StatusCompleted},
		{from: StatusActive, ev: eventVerify, wantErr: "payment verification is not allowed on a active enrollment"},
		{from: StatusCompleted, ev: eventProgress, want: StatusCompleted},
		{from: StatusCompleted, ev: eventComplete, wantErr: "completion is not allowed on a completed enrollment"},
		{from: StatusCompleted, ev: eventCertificateSent, want: StatusCompleted},
		{from: StatusCancelled, ev: eventResubmit, wantErr: "payment resubmission is not allowed on a cancelled enrollment"},
		{from: StatusCancelled, ev: eventProgress, wantErr: "progress update is not allowed on a cancelled enrollment"},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+" "+string(tt.ev), func(t *testing.T) {
			got, err := next(tt.from, tt.ev)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_clampProgress(t *testing.T) {
	for in, want := range map[int]int{-5: 0, 0: 0, 42: 42, 100: 100, 150: 100} {
		assert.Equal(t, want, clampProgress(in), in)
	}
}

func Test_initialStatus(t *testing.T) {
	assert.Equal(t, StatusPending, initialStatus(true))
	assert.Equal(t, StatusActive, initialStatus(false))
}
