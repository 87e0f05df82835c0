package configmgr

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opendevice/onboard/internal/catalog"
	"github.com/opendevice/onboard/internal/device"
	"github.com/opendevice/onboard/internal/mapping"
)

type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]any
	calls     []string
}

func (f *fakeTransport) List(_ context.Context, path string, _ *device.RequestOptions) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()

	base := path
	if i := strings.Index(path, "?"); i >= 0 {
		base = path[:i]
	}
	value, ok := f.responses[base]
	if !ok {
		return nil, &device.NotFoundError{Path: path}
	}
	return value, nil
}

func (f *fakeTransport) Create(context.Context, string, any) (map[string]any, error) {
	return nil, nil
}

func (f *fakeTransport) Modify(context.Context, string, any) (map[string]any, error) {
	return nil, nil
}

func (f *fakeTransport) Delete(context.Context, string) error { return nil }

func (f *fakeTransport) Transaction(context.Context, []device.Operation) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeTransport) called(base string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if strings.HasPrefix(call, base) {
			return true
		}
	}
	return false
}

func baseResponses() map[string]any {
	return map[string]any{
		catalog.PathProvision: []any{
			map[string]any{"name": "ltm", "level": "nominal"},
			map[string]any{"name": "gtm", "level": "none"},
		},
		"/shared/identified-devices/config/device-info": map[string]any{
			"machineId": "machine-1234",
			"version":   "15.1.0",
			"hostname":  "bigip.example.com",
			"platform":  "BIG-IP",
		},
		catalog.PathCMDevice: []any{
			map[string]any{"hostname": "bigip.example.com", "name": "/Common/bigip1"},
		},
	}
}

func newTestManager(t *testing.T, items []catalog.ConfigItem, responses map[string]any) (*Manager, *fakeTransport, *MemoryStore) {
	t.Helper()
	transport := &fakeTransport{responses: responses}
	store := NewMemoryStore()
	manager := New(catalog.New(items), transport, store, zap.NewNop())
	return manager, transport, store
}

func TestRetrieveSelfIp(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:        catalog.PathSelfIp,
			SchemaClass: "SelfIp",
			Properties: []catalog.PropertyRule{
				{ID: "address"},
				{ID: "vlan"},
				{ID: "allowService"},
			},
		},
	}
	responses := baseResponses()
	responses[catalog.PathSelfIp] = []any{
		map[string]any{
			"name":     "internal-self",
			"kind":     "tm:net:self:selfstate",
			"selfLink": "https://localhost/mgmt/tm/net/self/internal-self",
			"address":  "10.0.0.1/24",
			"vlan":     "/Common/internal",
		},
		map[string]any{
			"name":         "external-self",
			"address":      "192.0.2.1/24",
			"vlan":         "/Common/external",
			"allowService": []any{"default"},
		},
	}

	manager, _, _ := newTestManager(t, items, responses)
	result, err := manager.Retrieve(context.Background(), map[string]any{}, nil, mapping.Options{})
	require.NoError(t, err)

	common := result.CurrentConfig["Common"].(map[string]any)
	selfIps := common["SelfIp"].(map[string]any)

	internal := selfIps["internal-self"].(map[string]any)
	assert.Equal(t, "10.0.0.1/24", internal["address"])
	assert.Equal(t, "internal", internal["vlan"])
	assert.Equal(t, "none", internal["allowService"])
	assert.NotContains(t, internal, "kind")
	assert.NotContains(t, internal, "selfLink")

	external := selfIps["external-self"].(map[string]any)
	assert.Equal(t, "default", external["allowService"])

	assert.Equal(t, "machine-1234", result.ConfigID)
	assert.Equal(t, "15.1.0", result.DeviceVersion)
	assert.Equal(t, true, result.CurrentConfig["parsed"])
}

func TestRetrieveScalarItemCopiesKeys(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:       catalog.PathSysGlobalSettings,
			Properties: []catalog.PropertyRule{{ID: "hostname"}},
		},
	}
	responses := baseResponses()
	responses[catalog.PathSysGlobalSettings] = map[string]any{
		"hostname": "bigip.example.com",
	}

	manager, _, _ := newTestManager(t, items, responses)
	result, err := manager.Retrieve(context.Background(), map[string]any{}, nil, mapping.Options{})
	require.NoError(t, err)

	common := result.CurrentConfig["Common"].(map[string]any)
	assert.Equal(t, "bigip.example.com", common["hostname"])
}

func TestRetrieveDbVariablesKeepsOnlyTracked(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:        catalog.PathDbVariables,
			SchemaClass: "DbVariables",
			SingleValue: true,
			Silent:      true,
			Properties:  []catalog.PropertyRule{{ID: "value"}},
		},
	}
	responses := baseResponses()
	responses[catalog.PathDbVariables] = []any{
		map[string]any{"name": "ui.advisory.enabled", "value": "true"},
		map[string]any{"name": "dns.cacheserver", "value": "off"},
		map[string]any{"name": "something.untracked", "value": "1"},
	}

	declaration := map[string]any{
		"Common": map[string]any{
			"dbVars": map[string]any{
				"class":               "DbVariables",
				"ui.advisory.enabled": "true",
			},
		},
	}
	priorCurrent := map[string]any{
		"Common": map[string]any{
			"DbVariables": map[string]any{"dns.cacheserver": "off"},
		},
	}

	manager, _, _ := newTestManager(t, items, responses)
	result, err := manager.Retrieve(context.Background(), declaration, priorCurrent, mapping.Options{})
	require.NoError(t, err)

	common := result.CurrentConfig["Common"].(map[string]any)
	dbVars := common["DbVariables"].(map[string]any)
	assert.Contains(t, dbVars, "ui.advisory.enabled")
	assert.Contains(t, dbVars, "dns.cacheserver")
	assert.NotContains(t, dbVars, "something.untracked")
}

func TestRetrieveSkipsUnprovisionedModules(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:            catalog.PathGSLBDataCenter,
			SchemaClass:     "GSLBDataCenter",
			RequiredModules: []catalog.RequiredModule{{Module: "gtm"}},
			Properties:      []catalog.PropertyRule{{ID: "location"}},
		},
	}
	responses := baseResponses()

	declaration := map[string]any{
		"Common": map[string]any{
			"dc": map[string]any{"class": "GSLBDataCenter"},
		},
	}

	manager, transport, _ := newTestManager(t, items, responses)
	result, err := manager.Retrieve(context.Background(), declaration, nil, mapping.Options{})
	require.NoError(t, err)

	common := result.CurrentConfig["Common"].(map[string]any)
	assert.Equal(t, map[string]any{}, common["GSLBDataCenter"])
	assert.False(t, transport.called(catalog.PathGSLBDataCenter))
}

func TestRetrieveAmbiguousDeviceIdentity(t *testing.T) {
	responses := baseResponses()
	responses[catalog.PathCMDevice] = []any{
		map[string]any{"hostname": "bigip.example.com", "name": "/Common/bigip1"},
		map[string]any{"hostname": "bigip.example.com", "name": "/Common/bigip2"},
	}

	manager, _, _ := newTestManager(t, nil, responses)
	_, err := manager.Retrieve(context.Background(), map[string]any{}, nil, mapping.Options{})
	require.Error(t, err)

	var ambiguity *IdentityAmbiguityError
	require.ErrorAs(t, err, &ambiguity)
	assert.Equal(t, "bigip.example.com", ambiguity.Hostname)
	assert.Equal(t, 2, ambiguity.Matches)
}

func TestRetrieveFollowsReferences(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:        catalog.PathVLAN,
			SchemaClass: "VLAN",
			Properties: []catalog.PropertyRule{
				{ID: "mtu", StringToInt: true},
				{ID: "tag", StringToInt: true},
			},
			References: map[string][]catalog.PropertyRule{
				"interfacesReference": {
					{ID: "tagged", Truth: true, Falsehood: false},
				},
			},
		},
	}
	responses := baseResponses()
	responses[catalog.PathVLAN] = []any{
		map[string]any{
			"name": "external",
			"mtu":  "1500",
			"tag":  "1234",
			"interfacesReference": map[string]any{
				"link": "https://localhost/mgmt/tm/net/vlan/~Common~external/interfaces?ver=15.1.0",
			},
		},
	}
	responses["/tm/net/vlan/~Common~external/interfaces"] = []any{
		map[string]any{"name": "1.1", "tagged": true},
		map[string]any{"name": "1.2"},
	}

	manager, transport, _ := newTestManager(t, items, responses)
	result, err := manager.Retrieve(context.Background(), map[string]any{}, nil, mapping.Options{})
	require.NoError(t, err)

	common := result.CurrentConfig["Common"].(map[string]any)
	vlan := common["VLAN"].(map[string]any)["external"].(map[string]any)
	assert.Equal(t, 1500, vlan["mtu"])
	assert.Equal(t, 1234, vlan["tag"])

	interfaces := vlan["interfaces"].([]any)
	require.Len(t, interfaces, 2)
	first := interfaces[0].(map[string]any)
	assert.Equal(t, "1.1", first["name"])
	assert.Equal(t, true, first["tagged"])

	assert.True(t, transport.called("/tm/net/vlan/~Common~external/interfaces"))
}

func TestRetrieveMergesOriginalConfig(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:        catalog.PathDbVariables,
			SchemaClass: "DbVariables",
			SingleValue: true,
			Properties:  []catalog.PropertyRule{{ID: "value"}},
		},
	}
	responses := baseResponses()
	responses[catalog.PathDbVariables] = []any{
		map[string]any{"name": "ui.advisory.enabled", "value": "true"},
	}

	declaration := map[string]any{
		"Common": map[string]any{
			"dbVars": map[string]any{
				"class":               "DbVariables",
				"ui.advisory.enabled": "true",
			},
		},
	}

	manager, _, store := newTestManager(t, items, responses)
	require.NoError(t, store.SetOriginalConfig(context.Background(), "machine-1234", map[string]any{
		"parsed": true,
		"Common": map[string]any{
			"Disk": map[string]any{"applicationData": float64(100)},
		},
	}))

	result, err := manager.Retrieve(context.Background(), declaration, nil, mapping.Options{})
	require.NoError(t, err)

	original := result.OriginalConfig
	assert.Equal(t, snapshotVersion, original["version"])

	originalCommon := original["Common"].(map[string]any)
	originalVars := originalCommon["DbVariables"].(map[string]any)
	assert.Contains(t, originalVars, "ui.advisory.enabled")

	stored, err := store.OriginalConfig(context.Background(), "machine-1234")
	require.NoError(t, err)
	assert.Equal(t, original, stored)
}

func TestRetrieveFoldsVxlanTunnels(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:        catalog.PathTunnel,
			SchemaClass: "Tunnel",
			Properties:  []catalog.PropertyRule{{ID: "mtu", StringToInt: true}},
		},
		{
			Path:        catalog.PathVXLAN,
			SchemaClass: "Tunnel",
			Properties: []catalog.PropertyRule{
				{ID: "encapsulationType"},
				{ID: "port", StringToInt: true},
			},
		},
	}
	responses := baseResponses()
	responses[catalog.PathTunnel] = []any{
		map[string]any{"name": "tunnelVxlan", "mtu": "1500"},
	}
	responses[catalog.PathVXLAN] = []any{
		map[string]any{"name": "tunnelVxlan_vxlan", "encapsulationType": "vxlan", "port": "4789"},
		map[string]any{"name": "stray_vxlan", "encapsulationType": "vxlan", "port": "4789"},
	}

	manager, _, _ := newTestManager(t, items, responses)
	result, err := manager.Retrieve(context.Background(), map[string]any{}, nil, mapping.Options{})
	require.NoError(t, err)

	common := result.CurrentConfig["Common"].(map[string]any)
	tunnels := common["Tunnel"].(map[string]any)

	tunnel := tunnels["tunnelVxlan"].(map[string]any)
	assert.Equal(t, "vxlan", tunnel["profile"])
	assert.Equal(t, 4789, tunnel["port"])

	assert.NotContains(t, tunnels, "stray_vxlan")
}

func TestRetrieveRenamesRoutingBGPLists(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:        catalog.PathRoutingBGP,
			SchemaClass: "RoutingBGP",
			Properties:  []catalog.PropertyRule{{ID: "localAs"}},
			References: map[string][]catalog.PropertyRule{
				"neighborReference":  {{ID: "ebgpMultihop", StringToInt: true}},
				"peerGroupReference": {{ID: "remoteAs", StringToInt: true}},
			},
		},
	}
	responses := baseResponses()
	responses[catalog.PathRoutingBGP] = []any{
		map[string]any{
			"name":    "exampleBGP",
			"localAs": float64(65010),
			"neighborReference": map[string]any{
				"link": "https://localhost/mgmt/tm/net/routing/bgp/~Common~exampleBGP/neighbor?ver=15.1.0",
			},
			"peerGroupReference": map[string]any{
				"link": "https://localhost/mgmt/tm/net/routing/bgp/~Common~exampleBGP/peer-group?ver=15.1.0",
			},
		},
	}
	responses["/tm/net/routing/bgp/~Common~exampleBGP/neighbor"] = []any{
		map[string]any{"name": "10.2.2.2", "ebgpMultihop": "2"},
		map[string]any{"name": "10.1.1.1", "ebgpMultihop": "1"},
	}
	responses["/tm/net/routing/bgp/~Common~exampleBGP/peer-group"] = []any{
		map[string]any{"name": "Neighbor_IN", "remoteAs": "65020"},
	}

	manager, _, _ := newTestManager(t, items, responses)
	result, err := manager.Retrieve(context.Background(), map[string]any{}, nil, mapping.Options{})
	require.NoError(t, err)

	common := result.CurrentConfig["Common"].(map[string]any)
	router := common["RoutingBGP"].(map[string]any)["exampleBGP"].(map[string]any)
	assert.EqualValues(t, 65010, router["localAs"])

	neighbors := router["neighbors"].([]any)
	require.Len(t, neighbors, 2)
	first := neighbors[0].(map[string]any)
	assert.Equal(t, "10.1.1.1", first["name"])
	assert.Equal(t, 1, first["ebgpMultihop"])
	assert.NotContains(t, router, "neighbor")

	peerGroups := router["peerGroups"].([]any)
	require.Len(t, peerGroups, 1)
	group := peerGroups[0].(map[string]any)
	assert.Equal(t, "Neighbor_IN", group["name"])
	assert.Equal(t, 65020, group["remoteAs"])
	assert.NotContains(t, router, "peerGroup")
}

func TestRetrievePatchesGSLBServerMembers(t *testing.T) {
	items := []catalog.ConfigItem{
		{
			Path:            catalog.PathGSLBServer,
			SchemaClass:     "GSLBServer",
			RequiredModules: []catalog.RequiredModule{{Module: "gtm"}},
			Properties:      []catalog.PropertyRule{{ID: "product"}},
			References: map[string][]catalog.PropertyRule{
				"devicesReference": {{ID: "description"}},
				"virtualServersReference": {
					{ID: "destination"},
					{ID: "monitor", RetainCommon: true},
					{ID: "translationAddress"},
				},
			},
		},
	}
	responses := baseResponses()
	responses[catalog.PathProvision] = []any{
		map[string]any{"name": "ltm", "level": "nominal"},
		map[string]any{"name": "gtm", "level": "nominal"},
	}
	responses[catalog.PathGSLBServer] = []any{
		map[string]any{
			"name":    "gslbServer",
			"product": "bigip",
			"monitor": "/Common/bigip",
			"devicesReference": map[string]any{
				"link": "https://localhost/mgmt/tm/gtm/server/~Common~gslbServer/devices?ver=15.1.0",
			},
			"virtualServersReference": map[string]any{
				"link": "https://localhost/mgmt/tm/gtm/server/~Common~gslbServer/virtual-servers?ver=15.1.0",
			},
		},
	}
	responses["/tm/gtm/server/~Common~gslbServer/devices"] = []any{
		map[string]any{
			"name":        "0",
			"description": "primary",
			"addresses": []any{
				map[string]any{"name": "192.0.2.7", "translation": "10.10.0.7"},
			},
		},
	}
	responses["/tm/gtm/server/~Common~gslbServer/virtual-servers"] = []any{
		map[string]any{
			"name":               "vs1",
			"destination":        "192.0.2.20:443",
			"monitor":            "/Common/http and /Common/tcp",
			"translationAddress": "none",
			"disabled":           true,
		},
		map[string]any{
			"name":               "vs2",
			"destination":        "192.0.2.21:8080",
			"translationAddress": "10.0.0.21",
		},
	}

	manager, _, _ := newTestManager(t, items, responses)
	result, err := manager.Retrieve(context.Background(), map[string]any{}, nil, mapping.Options{})
	require.NoError(t, err)

	common := result.CurrentConfig["Common"].(map[string]any)
	server := common["GSLBServer"].(map[string]any)["gslbServer"].(map[string]any)
	assert.Equal(t, []any{"/Common/bigip"}, server["monitor"])
	assert.Equal(t, true, server["enabled"])

	devices := server["devices"].([]any)
	require.Len(t, devices, 1)
	deviceEntry := devices[0].(map[string]any)
	assert.Equal(t, "192.0.2.7", deviceEntry["name"])
	assert.Equal(t, "10.10.0.7", deviceEntry["translation"])
	assert.Equal(t, "primary", deviceEntry["description"])
	assert.NotContains(t, deviceEntry, "addresses")

	virtualServers := server["virtualServers"].([]any)
	require.Len(t, virtualServers, 2)

	vs1 := virtualServers[0].(map[string]any)
	assert.Equal(t, "192.0.2.20", vs1["address"])
	assert.Equal(t, 443, vs1["port"])
	assert.Equal(t, []any{"/Common/http", "/Common/tcp"}, vs1["monitor"])
	assert.Equal(t, false, vs1["enabled"])
	assert.NotContains(t, vs1, "destination")
	assert.NotContains(t, vs1, "disabled")
	assert.NotContains(t, vs1, "translationAddress")

	vs2 := virtualServers[1].(map[string]any)
	assert.Equal(t, "192.0.2.21", vs2["address"])
	assert.Equal(t, 8080, vs2["port"])
	assert.Equal(t, true, vs2["enabled"])
	assert.Equal(t, "10.0.0.21", vs2["translationAddress"])
}

func TestIsEnabledGtmObject(t *testing.T) {
	tests := []struct {
		name string
		obj  map[string]any
		want bool
	}{
		{"bool enabled", map[string]any{"enabled": true}, true},
		{"bool disabled", map[string]any{"disabled": true}, false},
		{"string enabled", map[string]any{"enabled": "True"}, true},
		{"string disabled", map[string]any{"disabled": "false"}, true},
		{"neither", map[string]any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isEnabledGtmObject(tt.obj))
		})
	}
}

func TestGtmMonitorArray(t *testing.T) {
	assert.Equal(t, []any{"/Common/http", "/Common/tcp"}, gtmMonitorArray("/Common/http and /Common/tcp"))
	assert.Equal(t, []any{}, gtmMonitorArray(""))
}

func TestSplitDestination(t *testing.T) {
	address, port := splitDestination("192.0.2.10:443")
	assert.Equal(t, "192.0.2.10", address)
	assert.Equal(t, 443, port)

	address, port = splitDestination("fd00::10.8080")
	assert.Equal(t, "fd00::10", address)
	assert.Equal(t, 8080, port)
}

func TestCheckRequiredModules(t *testing.T) {
	required := []catalog.RequiredModule{
		{Module: "afm"},
		{Module: "legacy", MaxVersion: "13.1"},
	}
	// The versioned requirement no longer applies past its maxVersion.
	assert.True(t, checkRequiredModules(required, []string{"afm"}, "15.1.0"))
	assert.False(t, checkRequiredModules(required, []string{"afm"}, "13.0.0"))
	assert.True(t, checkRequiredModules(required, []string{"afm", "legacy"}, "13.0.0"))
	assert.False(t, checkRequiredModules(required, nil, "15.1.0"))
}

func TestPatchSSHDInclude(t *testing.T) {
	patched := map[string]any{
		"include": "Ciphers aes128-ctr,aes256-ctr\nMACs hmac-sha1\nLoginGraceTime 120\nMaxAuthTries 5\nMaxStartups 10:30:100\nProtocol 2",
	}
	patchSSHD(patched)

	assert.Equal(t, []any{"aes128-ctr", "aes256-ctr"}, patched["ciphers"])
	assert.Equal(t, []any{"hmac-sha1"}, patched["MACS"])
	assert.Equal(t, 120, patched["loginGraceTime"])
	assert.Equal(t, 5, patched["maxAuthTries"])
	assert.Equal(t, "10:30:100", patched["maxStartups"])
	assert.Equal(t, 2, patched["protocol"])
	assert.NotContains(t, patched, "include")
}

func TestPatchAuthRadiusServers(t *testing.T) {
	merge := &catalog.SchemaMerge{Path: []string{"radius", "servers"}, Action: "add"}
	authClass := map[string]any{"enabledSourceType": "radius"}

	merged, err := patchAuth(merge, authClass, map[string]any{
		"name":   catalog.RadiusPrimaryServer,
		"server": "192.0.2.20",
		"port":   float64(1812),
	})
	require.NoError(t, err)

	radius := merged["radius"].(map[string]any)
	servers := radius["servers"].(map[string]any)
	primary := servers["primary"].(map[string]any)
	assert.Equal(t, "192.0.2.20", primary["server"])
	assert.NotContains(t, primary, "name")
}

func TestPatchAuthSource(t *testing.T) {
	patched, err := patchAuth(nil, nil, map[string]any{
		"type":     "active-directory",
		"fallback": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "activeDirectory", patched["enabledSourceType"])
	assert.Equal(t, true, patched["fallback"])
	assert.NotContains(t, patched, "type")
}
