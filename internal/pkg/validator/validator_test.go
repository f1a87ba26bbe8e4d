package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	type pollerConfig struct {
		BaseURL  string `validate:"url"`
		Chain    string `validate:"required"`
		PageSize int    `validate:"min=1,max=100"`
	}

	t.Run("should pass when all fields are valid", func(t *testing.T) {
		cfg := pollerConfig{BaseURL: "https://deep-index.moralis.io/api/v2.2", Chain: "polygon", PageSize: 25}
		assert.NoError(t, Validate(cfg))
	})

	t.Run("should report every failing field", func(t *testing.T) {
		cfg := pollerConfig{BaseURL: "not a url", Chain: "", PageSize: 500}

		err := Validate(cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidationFailed)

		msg := err.Error()
		assert.Contains(t, msg, "pollerConfig.BaseURL': value 'not a url'")
		assert.Contains(t, msg, "pollerConfig.Chain': value ''")
		assert.Contains(t, msg, "'max' validation")
	})

	t.Run("should validate nested structs", func(t *testing.T) {
		type outer struct {
			Poller pollerConfig
		}

		err := Validate(outer{Poller: pollerConfig{BaseURL: "https://x.io", PageSize: 10}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outer.Poller.Chain")
	})

	t.Run("should fail when input is not a struct", func(t *testing.T) {
		assert.Error(t, Validate("plain string"))
	})
}

func TestVar(t *testing.T) {
	t.Run("should accept a hex address", func(t *testing.T) {
		assert.NoError(t, Var("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", "required,eth_addr"))
	})

	t.Run("should reject a malformed address", func(t *testing.T) {
		err := Var("0x1234", "required,eth_addr")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidationFailed))
	})
}

func TestFormatError(t *testing.T) {
	t.Run("should return non-validation errors unchanged", func(t *testing.T) {
		original := errors.New("boom")
		assert.Equal(t, original, formatError(original))
	})
}
