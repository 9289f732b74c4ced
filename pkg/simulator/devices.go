package simulator

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dukex/convergence/pkg/models"
)

const (
	DefaultCommandDelay = 500 * time.Millisecond
	DefaultSuccessRate  = 0.9
)

// DeviceController executes a single device command. A device that answers with a
// failure returns a result with Success=false and a nil error; an error means the
// command never resolved (cancelled or timed out).
type DeviceController interface {
	Execute(ctx context.Context, command models.DeviceCommand) (models.CommandResult, error)
}

// SimulatedDevices answers every command after a fixed delay, succeeding with a fixed probability.
type SimulatedDevices struct {
	delay       time.Duration
	successRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedDevices creates a simulated controller. A nil rng uses a randomly seeded source.
func NewSimulatedDevices(delay time.Duration, successRate float64, rng *rand.Rand) *SimulatedDevices {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &SimulatedDevices{
		delay:       delay,
		successRate: successRate,
		rng:         rng,
	}
}

func (d *SimulatedDevices) Execute(ctx context.Context, command models.DeviceCommand) (models.CommandResult, error) {
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return models.CommandResult{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return models.CommandResult{}, err
	}

	d.mu.Lock()
	roll := d.rng.Float64()
	d.mu.Unlock()

	result := models.CommandResult{
		CommandID: command.ID,
		Success:   roll < d.successRate,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"device_id": command.DeviceID},
	}

	if result.Success {
		result.Message = command.Action + " executed successfully"
	} else {
		result.Message = command.Action + " failed: device " + command.DeviceID + " did not acknowledge"
	}

	return result, nil
}
