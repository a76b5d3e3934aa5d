package property

import (
	"testing"

	"github.com/flowmesh/flowmesh/internal/domain/number"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBooleanReadOnlyRejectsActionWrite(t *testing.T) {
	p := NewBoolean("on", On, true, true)
	_, err := p.SetBooleanAction(false)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestBooleanObservedBypassesReadOnly(t *testing.T) {
	p := NewBoolean("on", On, true, true)
	updated, err := p.SetBooleanObserved(false)
	require.NoError(t, err)
	v, ok := updated.BoolValue()
	require.True(t, ok)
	assert.False(t, v)
}

func TestNumberValidateValueClampsAboveMaximum(t *testing.T) {
	min := number.PositiveInt(0)
	max := number.PositiveInt(100)
	p := NewNumber("brightness", Brightness, false, number.PositiveInt(50), "", &min, &max)

	result := p.ValidateValue(number.PositiveInt(150))
	assert.Equal(t, Clamped, result.Outcome)
	assert.True(t, result.Value.Equal(max))
}

func TestNumberValidateValueWithinBoundsIsValid(t *testing.T) {
	min := number.PositiveInt(0)
	max := number.PositiveInt(100)
	p := NewNumber("brightness", Brightness, false, number.PositiveInt(50), "", &min, &max)

	result := p.ValidateValue(number.PositiveInt(75))
	assert.Equal(t, Valid, result.Outcome)
	assert.True(t, result.Value.Equal(number.PositiveInt(75)))
}

func TestNumberObservedBypassesBounds(t *testing.T) {
	min := number.PositiveInt(0)
	max := number.PositiveInt(100)
	p := NewNumber("brightness", Brightness, false, number.PositiveInt(50), "", &min, &max)

	updated, err := p.SetNumberObserved(number.PositiveInt(9999))
	require.NoError(t, err)
	v, _ := updated.NumberValue()
	assert.True(t, v.Equal(number.PositiveInt(9999)))
}
