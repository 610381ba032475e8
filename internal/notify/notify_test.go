package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryErrorUnwrap(t *testing.T) {
	cause := errors.New("gateway closed")
	err := error(&DeliveryError{ChannelID: "123", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "123")

	var de *DeliveryError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "123", de.ChannelID)
}
