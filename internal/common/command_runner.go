package common

import (
	"context"
	"time"

	"missioncontrol/internal/errors"
)

// OperationFunc is one call against the mission backend
type OperationFunc[Output any] func(context.Context) (Output, error)

// RenderFunc turns an operation result into the value that gets formatted
type RenderFunc[Output any] func(Output) any

// RunCommand runs a backend operation, logs how long it took and writes its rendered
// result. A nil render writes the result itself.
func RunCommand[Output any](
	ctx context.Context,
	logger *errors.Logger,
	output *OutputHandler,
	cmdConfig CommandConfig,
	name string,
	op OperationFunc[Output],
	render RenderFunc[Output],
) error {
	logger.Debug("Running command", "command", name, "format", cmdConfig.OutputFormat)

	start := time.Now()
	result, err := op(ctx)
	if err != nil {
		logger.LogError(err, "Command failed", "command", name, "duration", time.Since(start))
		return err
	}
	logger.Debug("Command finished", "command", name, "duration", time.Since(start))

	var data any = result
	if render != nil {
		data = render(result)
	}
	return output.HandleOutput(data, cmdConfig)
}
