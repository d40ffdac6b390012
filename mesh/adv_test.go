package mesh

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseAdvData(t *testing.T) {
	raw := []byte{0x07, 0x16, 0xE4, 0xFE, 0xFE, 0xFF, 0xAA, 0xBB}

	adv, err := ParseAdvData(raw)
	require.NoError(t, err)
	require.Equal(t, uint8(7), adv.Length)
	require.Equal(t, uint8(ServiceDataType), adv.Type)
	require.Equal(t, MeshUUID, adv.UUID)
	require.Equal(t, uint16(0xFFFE), adv.Handle)
	require.True(t, adv.IsDFU())

	payload, ok := adv.Payload()
	require.True(t, ok)
	require.Equal(t, []byte{0xFE, 0xFF, 0xAA, 0xBB}, payload)
	require.Len(t, payload, int(adv.Length)-3)
}

func TestParseAdvDataShort(t *testing.T) {
	_, err := ParseAdvData([]byte{0x05, 0x16, 0xE4})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformed))
}

func TestIsDFUThreshold(t *testing.T) {
	tests := []struct {
		handle uint16
		want   bool
	}{
		{handle: 0x0000, want: false},
		{handle: 0x0001, want: false},
		{handle: AppMaxHandle - 1, want: false},
		{handle: AppMaxHandle, want: false},
		{handle: AppMaxHandle + 1, want: true},
		{handle: 0xFFFE, want: true},
		{handle: 0xFFFF, want: true},
	}

	for _, tt := range tests {
		adv := &AdvData{Handle: tt.handle}
		require.Equal(t, tt.want, adv.IsDFU(), "handle 0x%04X", tt.handle)
	}
}

func TestPayloadBounds(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		wantOK bool
	}{
		{name: "length exceeds buffer", raw: []byte{0x20, 0x16, 0xE4, 0xFE, 0xFE, 0xFF}, wantOK: false},
		{name: "length below handle", raw: []byte{0x04, 0x16, 0xE4, 0xFE, 0xFE, 0xFF}, wantOK: false},
		{name: "handle only", raw: []byte{0x05, 0x16, 0xE4, 0xFE, 0xFE, 0xFF}, wantOK: true},
		{name: "trailing bytes ignored", raw: []byte{0x05, 0x16, 0xE4, 0xFE, 0xFE, 0xFF, 0x01, 0x02}, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, err := ParseAdvData(tt.raw)
			require.NoError(t, err)
			payload, ok := adv.Payload()
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Len(t, payload, adv.PayloadLen())
			}
		})
	}
}

func TestNewAdvData(t *testing.T) {
	raw, err := NewAdvData(0xFFFC, []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	adv, err := ParseAdvData(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(0xFFFC), adv.Handle)
	require.Equal(t, 5, adv.PayloadLen())

	payload, ok := adv.Payload()
	require.True(t, ok)
	require.Equal(t, []byte{0xFC, 0xFF, 0x01, 0x02, 0x03}, payload)

	_, err = NewAdvData(0xFFFC, make([]byte, 0x100))
	require.Error(t, err)
}
