package abstract

import (
	"context"
	"fmt"

	"github.com/datazip-inc/filetap/types"
	"github.com/datazip-inc/filetap/utils/logger"
)

// Emitter receives every message produced by the driver, in order.
type Emitter func(message *types.Message) error

type AbstractDriver struct { //nolint:revive
	driver DriverInterface
}

func NewAbstractDriver(driver DriverInterface) *AbstractDriver {
	return &AbstractDriver{driver: driver}
}

func (a *AbstractDriver) GetConfigRef() Config {
	return a.driver.GetConfigRef()
}

func (a *AbstractDriver) Spec() any {
	return a.driver.Spec()
}

func (a *AbstractDriver) Type() string {
	return a.driver.Type()
}

func (a *AbstractDriver) Setup(ctx context.Context) error {
	return a.driver.Setup(ctx)
}

func (a *AbstractDriver) Close() {
	a.driver.CloseConnection()
}

// Check sets up the driver and reports the outcome as a connection status.
// A failure is carried in the message rather than returned.
func (a *AbstractDriver) Check(ctx context.Context) *types.Message {
	status := &types.StatusRow{Status: types.ConnectionSucceed}
	err := a.driver.Setup(ctx)
	if err == nil {
		err = a.driver.Check(ctx)
	}
	if err != nil {
		logger.Errorf("Connection check failed: %s", err)
		status = &types.StatusRow{Status: types.ConnectionFailed, Message: err.Error()}
	}
	return &types.Message{Type: types.ConnectionStatusMessage, ConnectionStatus: status}
}

// Discover returns the schema announcement of the driver's stream.
func (a *AbstractDriver) Discover(ctx context.Context) (*types.Message, error) {
	schema, err := a.driver.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover stream %s: %w", a.driver.StreamName(), err)
	}
	return &types.Message{
		Type:   types.SchemaMessage,
		Stream: a.driver.StreamName(),
		Schema: schema,
	}, nil
}

// Read emits the schema message of the stream followed by one record message
// per record.
func (a *AbstractDriver) Read(ctx context.Context, emit Emitter) (int, error) {
	summary, err := a.driver.Read(ctx, &emitHandler{emit: emit})
	if err != nil {
		return 0, fmt.Errorf("failed to read stream %s: %w", a.driver.StreamName(), err)
	}
	if n := summary.SkippedCount(); n > 0 {
		logger.Warnf("Skipped %d units of stream %s: %s", n, a.driver.StreamName(), summary.Skipped)
	}
	return summary.Records, nil
}
