// SPDX-License-Identifier: BSD-3-Clause

package fancond

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fancond/fancond/pkg/controller"
)

func TestConfigDTORoundTrip(t *testing.T) {
	cfg := controller.Config{
		UpdateInterval:         3 * time.Second,
		SmoothingIntervals:     4,
		TopStickinessIntervals: 2,
		MaxThreads:             8,
		Dynamic:                true,
	}

	dto := toConfigDTO(cfg)
	assert.Equal(t, int64(3000), dto.UpdateIntervalMS)
	assert.Equal(t, 4, dto.SmoothingIntervals)
	assert.Equal(t, 2, dto.TopStickinessIntervals)
	assert.Equal(t, 8, dto.MaxThreads)
	assert.True(t, dto.Dynamic)

	assert.Equal(t, cfg, dto.toConfig())
}
