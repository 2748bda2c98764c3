// SPDX-License-Identifier: BSD-3-Clause

package fan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestPointValidate(t *testing.T) {
	t.Run("neither rpm nor pwm set", func(t *testing.T) {
		p := Point{Temp: 40}
		require.ErrorIs(t, p.Validate(), ErrInvalidPoint)
	})

	t.Run("pwm out of range", func(t *testing.T) {
		p := Point{Temp: 40, PWM: intp(300)}
		require.ErrorIs(t, p.Validate(), ErrInvalidPoint)
	})

	t.Run("negative rpm", func(t *testing.T) {
		p := Point{Temp: 40, RPM: intp(-1)}
		require.ErrorIs(t, p.Validate(), ErrInvalidPoint)
	})

	t.Run("valid pwm point", func(t *testing.T) {
		p := Point{Temp: 40, PWM: intp(128)}
		require.NoError(t, p.Validate())
	})

	t.Run("valid rpm point", func(t *testing.T) {
		p := Point{Temp: 40, RPM: intp(1200)}
		require.NoError(t, p.Validate())
	})
}

func TestCurveFloor(t *testing.T) {
	c := NewCurve(map[int]int{30: 50, 50: 100, 70: 200})

	t.Run("exact key", func(t *testing.T) {
		v, ok := c.Floor(50)
		require.True(t, ok)
		assert.Equal(t, 100, v)
	})

	t.Run("between keys returns lower", func(t *testing.T) {
		v, ok := c.Floor(60)
		require.True(t, ok)
		assert.Equal(t, 100, v)
	})

	t.Run("above highest key saturates high", func(t *testing.T) {
		v, ok := c.Floor(1000)
		require.True(t, ok)
		assert.Equal(t, 200, v)
	})

	t.Run("below lowest key saturates to lowest entry", func(t *testing.T) {
		v, ok := c.Floor(-10)
		require.True(t, ok)
		assert.Equal(t, 50, v)
	})

	t.Run("empty curve", func(t *testing.T) {
		empty := NewCurve(nil)
		_, ok := empty.Floor(50)
		assert.False(t, ok)
	})
}

func TestCurveMaxValueAndMaxKey(t *testing.T) {
	c := NewCurve(map[int]int{30: 50, 70: 200, 50: 100})

	v, ok := c.MaxValue()
	require.True(t, ok)
	assert.Equal(t, 200, v)

	k, ok := c.MaxKey()
	require.True(t, ok)
	assert.Equal(t, 70, k)

	empty := NewCurve(nil)
	_, ok = empty.MaxValue()
	assert.False(t, ok)
	_, ok = empty.MaxKey()
	assert.False(t, ok)
}

func TestCurveMonotone(t *testing.T) {
	t.Run("non-decreasing is monotone", func(t *testing.T) {
		c := NewCurve(map[int]int{30: 50, 50: 50, 70: 200})
		assert.True(t, c.Monotone())
	})

	t.Run("a decrease breaks monotonicity", func(t *testing.T) {
		c := NewCurve(map[int]int{30: 200, 50: 100, 70: 50})
		assert.False(t, c.Monotone())
	})

	t.Run("empty curve is monotone", func(t *testing.T) {
		c := NewCurve(nil)
		assert.True(t, c.Monotone())
	})
}

func TestCurveSet(t *testing.T) {
	c := NewCurve(map[int]int{30: 50, 70: 200})

	c.Set(50, 100)
	assert.Equal(t, 3, c.Len())
	v, ok := c.Floor(50)
	require.True(t, ok)
	assert.Equal(t, 100, v)

	c.Set(30, 60)
	assert.Equal(t, 3, c.Len())
	v, ok = c.Floor(30)
	require.True(t, ok)
	assert.Equal(t, 60, v)

	m := c.Map()
	assert.Equal(t, map[int]int{30: 60, 50: 100, 70: 200}, m)
}

func TestCurveLenNilReceiver(t *testing.T) {
	var c *Curve
	assert.Equal(t, 0, c.Len())
}
