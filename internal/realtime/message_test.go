package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocationReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    LocationReport
		wantErr string
	}{
		{
			name:    "numbers",
			payload: `{"bookingId":"b1","currentLat":12.9716,"currentLng":77.5946}`,
			want:    LocationReport{BookingID: "b1", Lat: 12.9716, Lng: 77.5946},
		},
		{
			name:    "numeric strings",
			payload: `{"bookingId":"b1","currentLat":"-33.86","currentLng":" 151.2 "}`,
			want:    LocationReport{BookingID: "b1", Lat: -33.86, Lng: 151.2},
		},
		{
			name:    "missing booking id",
			payload: `{"currentLat":1,"currentLng":2}`,
			wantErr: "bookingId is required",
		},
		{
			name:    "non-numeric latitude",
			payload: `{"bookingId":"b1","currentLat":"north","currentLng":2}`,
			wantErr: "currentLat must be numeric",
		},
		{
			name:    "boolean longitude",
			payload: `{"bookingId":"b1","currentLat":1,"currentLng":true}`,
			wantErr: "currentLng must be numeric",
		},
		{
			name:    "null longitude",
			payload: `{"bookingId":"b1","currentLat":1,"currentLng":null}`,
			wantErr: "currentLng is required",
		},
		{
			name:    "not json",
			payload: `lat=1&lng=2`,
			wantErr: "malformed message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocationReport([]byte(tt.payload))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
