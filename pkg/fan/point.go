// SPDX-License-Identifier: BSD-3-Clause

package fan

import (
	"fmt"
	"sort"
)

// Point is a single temperature->(rpm,pwm) configuration entry. At least one
// of RPM/PWM must be set; see Validate.
type Point struct {
	Temp int
	RPM *int
	PWM *int
}

// Validate checks range and presence constraints on a configured Point.
func (p Point) Validate() error {
	if p.RPM == nil && p.PWM == nil {
		return fmt.Errorf("%w: temp=%d has neither rpm nor pwm", ErrInvalidPoint, p.Temp)
	}
	if p.PWM != nil && (*p.PWM < 0 || *p.PWM > 255) {
		return fmt.Errorf("%w: temp=%d pwm=%d out of [0,255]", ErrInvalidPoint, p.Temp, *p.PWM)
	}
	if p.RPM != nil && *p.RPM < 0 {
		return fmt.Errorf("%w: temp=%d rpm=%d negative", ErrInvalidPoint, p.Temp, *p.RPM)
	}
	return nil
}

// entry is one key/value pair of a Curve.
type entry struct {
	key int
	value int
}

// Curve is a strictly-ordered integer-keyed map supporting a floor lookup
// (the greatest key <= target, saturating to the lowest entry). It exists
// because no ordered-map container appears anywhere in the example corpus;
// a sorted slice plus sort.Search is the idiomatic stdlib equivalent of the
// source's std::map-based curves.
type Curve struct {
	entries []entry
}

// NewCurve builds a Curve from a map, sorting keys ascending. A map holds
// each key once, so the Curve has no duplicate keys.
func NewCurve(m map[int]int) *Curve {
	c := &Curve{entries: make([]entry, 0, len(m))}
	for k, v := range m {
		c.entries = append(c.entries, entry{key: k, value: v})
	}
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].key < c.entries[j].key })
	return c
}

// Set inserts or updates the value for key, keeping entries sorted.
func (c *Curve) Set(key, value int) {
	i := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].key >= key })
	if i < len(c.entries) && c.entries[i].key == key {
		c.entries[i].value = value
		return
	}
	c.entries = append(c.entries, entry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = entry{key: key, value: value}
}

// Len returns the number of entries.
func (c *Curve) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Floor returns the value at the greatest key <= target. If target is below
// the lowest key, the lowest entry's value is returned. Ok is false only when the curve is empty.
func (c *Curve) Floor(target int) (value int, ok bool) {
	if c.Len() == 0 {
		return 0, false
	}
	// sort.Search finds the first index with key > target; the floor is one before it.
	i := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].key > target })
	if i == 0 {
		return c.entries[0].value, true
	}
	return c.entries[i-1].value, true
}

// MaxValue returns the value associated with the greatest key (e.g. the
// highest-mapped RPM of a temp_to_rpm curve, used for top-stickiness).
func (c *Curve) MaxValue() (int, bool) {
	if c.Len() == 0 {
		return 0, false
	}
	return c.entries[len(c.entries)-1].value, true
}

// MaxKey returns the greatest key in the curve.
func (c *Curve) MaxKey() (int, bool) {
	if c.Len() == 0 {
		return 0, false
	}
	return c.entries[len(c.entries)-1].key, true
}

// Monotone reports whether values are non-decreasing as keys increase.
func (c *Curve) Monotone() bool {
	for i := 1; i < len(c.entries); i++ {
		if c.entries[i].value < c.entries[i-1].value {
			return false
		}
	}
	return true
}

// Map returns a copy of the curve as a plain map, for serialisation.
func (c *Curve) Map() map[int]int {
	m := make(map[int]int, c.Len())
	for _, e := range c.entries {
		m[e.key] = e.value
	}
	return m
}
