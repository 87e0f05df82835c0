package declaration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opendevice/onboard/internal/catalog"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return NewParser(cat, zap.NewNop())
}

func TestParseNamelessClassMergesUnderClassKey(t *testing.T) {
	parser := newTestParser(t)
	result, err := parser.Parse(map[string]any{
		"schemaVersion": "1.0.0",
		"class":         "Device",
		"Common": map[string]any{
			"class": "Tenant",
			"myDns": map[string]any{
				"class":       "DNS",
				"nameServers": []any{"1.2.3.4"},
			},
		},
	}, []string{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Common"}, result.Tenants)
	common := result.Parsed["Common"].(map[string]any)
	assert.Equal(t, map[string]any{
		"nameServers": []any{"1.2.3.4"},
	}, common["DNS"], "nameless classes merge without a name property")
	assert.Equal(t, true, result.Parsed["parsed"])
}

func TestParseNamedClassInjectsName(t *testing.T) {
	parser := newTestParser(t)
	result, err := parser.Parse(map[string]any{
		"Common": map[string]any{
			"class": "Tenant",
			"app1SelfIp": map[string]any{
				"class":   "SelfIp",
				"vlan":    "app1Vlan",
				"address": "1.2.3.4/24",
			},
		},
	}, []string{})
	require.NoError(t, err)

	common := result.Parsed["Common"].(map[string]any)
	selfIps := common["SelfIp"].(map[string]any)
	assert.Equal(t, map[string]any{
		"name":    "app1SelfIp",
		"vlan":    "app1Vlan",
		"address": "1.2.3.4/24",
	}, selfIps["app1SelfIp"])
}

func TestParseScalarPassThrough(t *testing.T) {
	parser := newTestParser(t)
	result, err := parser.Parse(map[string]any{
		"Common": map[string]any{
			"class":    "Tenant",
			"hostname": "bigip.example.com",
		},
	}, []string{})
	require.NoError(t, err)

	common := result.Parsed["Common"].(map[string]any)
	assert.Equal(t, "bigip.example.com", common["hostname"])
}

func TestParseVlanInterfaceTaggedDefault(t *testing.T) {
	parser := newTestParser(t)
	result, err := parser.Parse(map[string]any{
		"Common": map[string]any{
			"class": "Tenant",
			"myVlan": map[string]any{
				"class": "VLAN",
				"tag":   2345,
				"mtu":   1400,
				"interfaces": []any{
					map[string]any{"name": "1.1"},
					map[string]any{"name": "1.2", "tagged": false},
				},
			},
		},
	}, []string{})
	require.NoError(t, err)

	common := result.Parsed["Common"].(map[string]any)
	vlan := common["VLAN"].(map[string]any)["myVlan"].(map[string]any)
	interfaces := vlan["interfaces"].([]any)
	assert.Equal(t, map[string]any{"name": "1.1", "tagged": true},
		interfaces[0], "tagged defaults to true when the VLAN has a tag")
	assert.Equal(t, map[string]any{"name": "1.2", "tagged": false},
		interfaces[1], "an explicit tagged flag is preserved")
}

func TestParseVlanTruthReversal(t *testing.T) {
	parser := newTestParser(t)
	result, err := parser.Parse(map[string]any{
		"Common": map[string]any{
			"class": "Tenant",
			"myVlan": map[string]any{
				"class":           "VLAN",
				"mtu":             1500,
				"failsafeEnabled": true,
			},
		},
	}, []string{})
	require.NoError(t, err)

	common := result.Parsed["Common"].(map[string]any)
	vlan := common["VLAN"].(map[string]any)["myVlan"].(map[string]any)
	assert.Equal(t, "enabled", vlan["failsafe"])
	assert.NotContains(t, vlan, "failsafeEnabled")
}

func TestParseProvisionDefaults(t *testing.T) {
	parser := newTestParser(t)
	result, err := parser.Parse(map[string]any{
		"Common": map[string]any{
			"class": "Tenant",
			"myProvisioning": map[string]any{
				"class": "Provision",
				"ltm":   "nominal",
			},
		},
	}, []string{"ltm", "afm", "gtm"})
	require.NoError(t, err)

	common := result.Parsed["Common"].(map[string]any)
	assert.Equal(t, map[string]any{
		"ltm": "nominal",
		"afm": "none",
		"gtm": "none",
	}, common["Provision"])
}

func TestParseDereferencesInternalPointers(t *testing.T) {
	parser := newTestParser(t)
	result, err := parser.Parse(map[string]any{
		"Common": map[string]any{
			"class":    "Tenant",
			"hostname": "bigip.example.com",
			"myVlan": map[string]any{
				"class": "VLAN",
			},
			"mySyslog": map[string]any{
				"class":         "SyslogRemoteServer",
				"remoteServers": []any{"/Common/hostname"},
			},
			"app1SelfIp": map[string]any{
				"class": "SelfIp",
				"vlan":  "/Common/myVlan",
			},
		},
	}, []string{})
	require.NoError(t, err)

	common := result.Parsed["Common"].(map[string]any)
	syslog := common["SyslogRemoteServer"].(map[string]any)
	assert.Equal(t, []any{"bigip.example.com"}, syslog["remoteServers"],
		"a pointer to a string is replaced with the string")

	selfIp := common["SelfIp"].(map[string]any)["app1SelfIp"].(map[string]any)
	assert.Equal(t, "/Common/myVlan", selfIp["vlan"],
		"a pointer to an object keeps its literal value")
}

func TestParseRejectsClasslessObject(t *testing.T) {
	parser := newTestParser(t)
	_, err := parser.Parse(map[string]any{
		"Common": map[string]any{
			"class":   "Tenant",
			"mystery": map[string]any{"someProp": 1},
		},
	}, []string{})
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "Common", validationErr.Tenant)
	assert.Equal(t, "mystery", validationErr.Property)
}

func TestTenantSelection(t *testing.T) {
	parser := newTestParser(t)
	result, err := parser.Parse(map[string]any{
		"schemaVersion": "1.0.0",
		"class":         "Device",
		"Common":        map[string]any{"class": "Tenant"},
		"Tenant1":       map[string]any{"class": "Tenant"},
		"notATenant":    map[string]any{"class": "DNS"},
		"label":         "plain string",
	}, []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Common", "Tenant1"}, result.Tenants)
}

func TestResolvePointer(t *testing.T) {
	doc := map[string]any{
		"Common": map[string]any{
			"hostname": "bigip.example.com",
			"mySelfIp": map[string]any{"address": "1.2.3.4/24"},
		},
	}

	assert.Equal(t, "bigip.example.com", ResolvePointer(doc, "/Common/hostname"))
	assert.Equal(t, "1.2.3.4/24", ResolvePointer(doc, "/Common/mySelfIp/address"))
	assert.Nil(t, ResolvePointer(doc, "/Common/missing"))
	assert.Nil(t, ResolvePointer(doc, "/Common/hostname/tooDeep"))
}
