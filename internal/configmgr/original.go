package configmgr

import (
	"context"
	"sync"

	"github.com/opendevice/onboard/internal/mapping"
)

// snapshotVersion is stamped on original config snapshots that predate
// version tracking.
const snapshotVersion = "1.0.0"

// Store persists original config snapshots keyed by the device's machine
// id. OriginalConfig returns nil without error when no snapshot exists.
type Store interface {
	OriginalConfig(ctx context.Context, configID string) (map[string]any, error)
	SetOriginalConfig(ctx context.Context, configID string, config map[string]any) error
}

// MemoryStore is an in-process Store for tests and single-run usage.
type MemoryStore struct {
	mu      sync.Mutex
	configs map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: map[string]map[string]any{}}
}

func (s *MemoryStore) OriginalConfig(_ context.Context, configID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	config, ok := s.configs[configID]
	if !ok {
		return nil, nil
	}
	return mapping.CopyMap(config), nil
}

func (s *MemoryStore) SetOriginalConfig(_ context.Context, configID string, config map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[configID] = mapping.CopyMap(config)
	return nil
}

// mergeOriginal loads the stored original config for the device, or seeds
// it from the current snapshot on first contact, then reconciles it:
// DB variables the original never saw are backfilled so a later rollback
// has a value to restore, disk sizing only grows, and provisioning changes
// add or drop the default empty objects for module-gated classes.
func (m *Manager) mergeOriginal(ctx context.Context, configID string, current map[string]any, deviceVersion string) (map[string]any, error) {
	original, err := m.store.OriginalConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		original = mapping.CopyMap(current)
	}
	if _, present := original["version"]; !present {
		original["version"] = snapshotVersion
	}

	currentCommon, _ := current["Common"].(map[string]any)
	originalCommon, ok := original["Common"].(map[string]any)
	if !ok {
		originalCommon = map[string]any{}
		original["Common"] = originalCommon
	}

	if currentVars, ok := currentCommon["DbVariables"].(map[string]any); ok {
		originalVars, ok := originalCommon["DbVariables"].(map[string]any)
		if !ok {
			originalVars = map[string]any{}
			originalCommon["DbVariables"] = originalVars
		}
		for name, value := range currentVars {
			if _, present := originalVars[name]; !present {
				originalVars[name] = value
			}
		}
	}

	// applicationData can never shrink on the device, so a rollback target
	// below the current size would fail.
	if currentDisk, ok := currentCommon["Disk"].(map[string]any); ok {
		if size, present := currentDisk["applicationData"]; present {
			originalDisk, ok := originalCommon["Disk"].(map[string]any)
			if !ok || numeric(size) > numeric(originalDisk["applicationData"]) {
				originalCommon["Disk"] = map[string]any{"applicationData": size}
			}
		}
	}

	if provision, ok := currentCommon["Provision"].(map[string]any); ok {
		var active, inactive []string
		for module, level := range provision {
			if level == "none" {
				inactive = append(inactive, module)
			} else {
				active = append(active, module)
			}
		}

		for i := range m.items {
			class := m.items[i].SchemaClass
			if class == "" {
				continue
			}
			required := m.items[i].RequiredModules
			if len(required) == 0 || checkRequiredModules(required, active, deviceVersion) {
				if _, present := originalCommon[class]; !present {
					originalCommon[class] = map[string]any{}
				}
			} else if checkRequiredModules(required, inactive, deviceVersion) {
				if existing, ok := originalCommon[class].(map[string]any); ok && len(existing) == 0 {
					delete(originalCommon, class)
				}
			}
		}
	}

	if err := m.store.SetOriginalConfig(ctx, configID, original); err != nil {
		return nil, err
	}
	return original, nil
}

func numeric(value any) float64 {
	switch typed := value.(type) {
	case float64:
		return typed
	case int:
		return float64(typed)
	default:
		return 0
	}
}
