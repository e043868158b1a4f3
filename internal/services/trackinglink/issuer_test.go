package trackinglink

import (
	"testing"

	"github.com/BearBump/CrewTrack/internal/auth/codec"
	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	c, err := codec.New("tracking-test-secret", true)
	require.NoError(t, err)
	return New(c, "https://track.example.com/")
}

func TestIssuer_Deterministic(t *testing.T) {
	i := newIssuer(t)
	ref := models.DeliveryRef("7b0c3f0e-8d7a-4c55-9f1e-2d3c4b5a6978")

	a := i.Sign(ref)
	b := i.Sign(ref)
	require.Equal(t, a, b)
	require.Len(t, a, 64)
	require.True(t, i.Verify(ref, a))
}

func TestIssuer_BoundToKindAndID(t *testing.T) {
	i := newIssuer(t)
	tok := i.Sign(models.MoveRef("42"))

	require.False(t, i.Verify(models.DeliveryRef("42"), tok))
	require.False(t, i.Verify(models.MoveRef("43"), tok))
	require.False(t, i.Verify(models.MoveRef("42"), tok[:10]))
	require.False(t, i.Verify(models.MoveRef("42"), ""))

	flipped := []byte(tok)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	require.False(t, i.Verify(models.MoveRef("42"), string(flipped)))
}

func TestIssuer_URL(t *testing.T) {
	i := newIssuer(t)
	ref := models.DeliveryRef("d-1")

	u := i.URL(ref, "PJ1042")
	require.Equal(t, "https://track.example.com/track/delivery/PJ1042?token="+i.Sign(ref), u)
}
