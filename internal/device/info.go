package device

import (
	"context"
	"fmt"
)

const deviceInfoPath = "/shared/identified-devices/config/device-info"

// Info is the device's self-reported identity. MachineID keys the
// persisted original-config snapshot; Version drives rule gating.
type Info struct {
	MachineID string
	Version   string
	Hostname  string
	Platform  string
}

// FetchInfo reads the device identity record.
func FetchInfo(ctx context.Context, transport Transport) (*Info, error) {
	result, err := transport.List(ctx, deviceInfoPath, &RequestOptions{Retry: ShortRetry})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device info: %w", err)
	}

	obj, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected device info response %T", result)
	}

	info := &Info{}
	info.MachineID, _ = obj["machineId"].(string)
	info.Version, _ = obj["version"].(string)
	info.Hostname, _ = obj["hostname"].(string)
	info.Platform, _ = obj["platform"].(string)
	if info.MachineID == "" {
		return nil, fmt.Errorf("device info carried no machine id")
	}
	return info, nil
}
