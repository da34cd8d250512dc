package kerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("classifies a kerr.Error by kind", func(t *testing.T) {
		err := InvalidArgumentf("bad parameter %d", 3)
		assert.Equal(t, InvalidArgument, KindOf(err))
	})

	t.Run("classifies a kerr.Error wrapped by another layer", func(t *testing.T) {
		inner := Devicef(errors.New("cuInit failed"), "initializing device")
		wrapped := fmt.Errorf("dispatch failed: %w", inner)
		assert.Equal(t, Device, KindOf(wrapped))
	})

	t.Run("defaults to Device for an error this package did not produce", func(t *testing.T) {
		assert.Equal(t, Device, KindOf(errors.New("plain")))
	})
}

func TestErrorMessage(t *testing.T) {
	underlying := errors.New("ptxas exited with status 1")
	err := Compilef(underlying, "compiling kernel %q", "add_kernel")

	assert.Contains(t, err.Error(), "add_kernel")
	assert.Contains(t, err.Error(), "ptxas exited with status 1")
	assert.ErrorIs(t, err, underlying)
}
