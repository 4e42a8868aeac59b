package cmd

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/dronesim/internal/models"
	"github.com/chrisdamba/dronesim/internal/simulator"
)

func init() {
	color.NoColor = true
}

func TestPrintSweepMarksBestPoint(t *testing.T) {
	var buf bytes.Buffer
	printSweep(&buf, []simulator.SweepPoint{
		{Chefs: 1, Drones: 2, Replications: 1, MeanDeliveryTime: math.NaN()},
		{Chefs: 2, Drones: 2, Replications: 1, MeanDeliveryTime: 18.5},
		{Chefs: 2, Drones: 4, Replications: 1, MeanDeliveryTime: 17.25},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[3], "*"), lines[3])
	assert.False(t, strings.HasPrefix(lines[2], "*"), lines[2])
	assert.Equal(t, "best: 2 chefs, 4 drones, mean delivery 17.25 min", lines[5])
}

func TestRunSimulationPrintsSummary(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.OutputFormat = models.OutputNone
	cfg.Horizon = 60

	var buf bytes.Buffer
	require.NoError(t, runSimulation(context.Background(), cfg, &buf))

	out := buf.String()
	assert.Contains(t, out, "orders completed")
	for _, metric := range summaryMetrics {
		assert.Contains(t, out, metric)
	}
}
