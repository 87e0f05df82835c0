package catalog

// Device REST API paths for the object classes we manage. Patches in the
// config manager look items up by path, so these must match configitems.json.
const (
	PathAuthLdap            = "/tm/auth/ldap"
	PathAuthRadius          = "/tm/auth/radius"
	PathAuthRadiusServer    = "/tm/auth/radius-server"
	PathAuthRemoteUser      = "/tm/auth/remote-user"
	PathAuthRemoteRole      = "/tm/auth/remote-role/role-info"
	PathAuthSource          = "/tm/auth/source"
	PathAuthTacacs          = "/tm/auth/tacacs"
	PathCLI                 = "/tm/cli/global-settings"
	PathCMDevice            = "/tm/cm/device"
	PathDNS                 = "/tm/sys/dns"
	PathDbVariables         = "/tm/sys/db"
	PathDisk                = "/tm/sys/disk/directory"
	PathFirewallAddressList = "/tm/security/firewall/address-list"
	PathFirewallPolicy      = "/tm/security/firewall/policy"
	PathFirewallPortList    = "/tm/security/firewall/port-list"
	PathGSLBDataCenter      = "/tm/gtm/datacenter"
	PathGSLBGeneral         = "/tm/gtm/global-settings/general"
	PathGSLBMonitor         = "/tm/gtm/monitor"
	PathGSLBProberPool      = "/tm/gtm/prober-pool"
	PathGSLBServer          = "/tm/gtm/server"
	PathHTTPD               = "/tm/sys/httpd"
	PathMACMasquerade       = "/tm/cm/traffic-group"
	PathManagementIpFw      = "/tm/security/firewall/management-ip-rules"
	PathManagementRoute     = "/tm/sys/management-route"
	PathNTP                 = "/tm/sys/ntp"
	PathProvision           = "/tm/sys/provision"
	PathRoute               = "/tm/net/route"
	PathRouteDomain         = "/tm/net/route-domain"
	PathRoutingAsPath       = "/tm/net/routing/as-path"
	PathRoutingBGP          = "/tm/net/routing/bgp"
	PathRoutingPrefixList   = "/tm/net/routing/prefix-list"
	PathSelfIp              = "/tm/net/self"
	PathSSHD                = "/tm/sys/sshd"
	PathSnmpAgent           = "/tm/sys/snmp"
	PathSnmpCommunity       = "/tm/sys/snmp/communities"
	PathSnmpTrapDestination = "/tm/sys/snmp/traps"
	PathSnmpUser            = "/tm/sys/snmp/users"
	PathSysGlobalSettings   = "/tm/sys/global-settings"
	PathSyslog              = "/tm/sys/syslog"
	PathTrafficControl      = "/tm/ltm/global-settings/traffic-control"
	PathTrunk               = "/tm/net/trunk"
	PathTunnel              = "/tm/net/tunnels/tunnel"
	PathVLAN                = "/tm/net/vlan"
	PathVXLAN               = "/tm/net/tunnels/vxlan"
)

// DefaultPartition is the device partition all tenant-less objects live in.
const DefaultPartition = "Common"

// PartitionPrefix is stripped from property values that reference objects in
// the default partition, unless a rule sets retainCommon.
const PartitionPrefix = "/Common/"

// ReferenceSuffix marks device properties that carry a follow-up link to a
// sub-collection rather than an inline value.
const ReferenceSuffix = "Reference"

// ClassKey is the discriminator property in declaration objects.
const ClassKey = "class"

// TenantClass marks top-level declaration entries that are tenants.
const TenantClass = "Tenant"

// namelessClasses hold at most one instance per tenant and are stored
// directly under the schema class key, without a user-chosen name.
var namelessClasses = []string{
	"Analytics",
	"Authentication",
	"DNS",
	"DagGlobals",
	"DbVariables",
	"Disk",
	"GSLBGlobals",
	"HTTPD",
	"License",
	"ManagementIpFirewall",
	"MirrorIp",
	"NTP",
	"Provision",
	"RemoteAuthRoles",
	"SSHD",
	"SnmpAgent",
	"SnmpTrapEvents",
	"System",
	"SyslogRemoteServer",
	"TrafficControl",
}

// KnownModules is every provisionable module a declaration can set a level
// for. Provision defaulting fills unmentioned modules with "none".
var KnownModules = []string{
	"afm",
	"am",
	"apm",
	"asm",
	"avr",
	"cgnat",
	"dos",
	"fps",
	"gtm",
	"ilx",
	"lc",
	"ltm",
	"pem",
	"swg",
	"urldb",
}

// RADIUS server objects use fixed names on the device.
const (
	RadiusServerPrefix    = "system_auth_name"
	RadiusPrimaryServer   = "system_auth_name1"
	RadiusSecondaryServer = "system_auth_name2"
)

// IsNamelessClass reports whether instances of the class are stored without a
// user-chosen name.
func IsNamelessClass(schemaClass string) bool {
	for _, c := range namelessClasses {
		if c == schemaClass {
			return true
		}
	}
	return false
}
