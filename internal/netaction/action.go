// Package netaction translates policy decisions ("suspend this subscriber")
// into concrete mechanisms: RADIUS group reassignment, firewall address-list
// membership, or direct PPPoE profile changes. The isolir engine never
// touches device-specific mechanics.
package netaction

import (
	"context"
	"fmt"
	"net"

	"github.com/c-robinson/iplib"
	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AuthMode is how subscribers authenticate in this deployment, resolved once
// at startup instead of comparing setting strings at every call site
type AuthMode int

const (
	AuthRadius AuthMode = iota
	AuthDevice
)

func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "radius", "":
		return AuthRadius, nil
	case "device", "legacy":
		return AuthDevice, nil
	default:
		return AuthRadius, fmt.Errorf("unknown auth mode %q", s)
	}
}

func (m AuthMode) String() string {
	if m == AuthDevice {
		return "device"
	}
	return "radius"
}

// MonitorMode selects how device state is observed/mutated
type MonitorMode int

const (
	MonitorSnmp MonitorMode = iota
	MonitorApi
)

func ParseMonitorMode(s string) (MonitorMode, error) {
	switch s {
	case "snmp", "":
		return MonitorSnmp, nil
	case "api", "direct":
		return MonitorApi, nil
	default:
		return MonitorSnmp, fmt.Errorf("unknown monitor mode %q", s)
	}
}

func (m MonitorMode) String() string {
	if m == MonitorApi {
		return "api"
	}
	return "snmp"
}

// Firewall address list holding suspended static-IP subscribers
const IsolirAddressList = "ISOLIR"

// Mechanism names recorded in audit logs
const (
	MechanismRadiusGroup  = "radius_group"
	MechanismFirewallList = "firewall_list"
	MechanismPppoeProfile = "pppoe_profile"
	MechanismNone         = "none"
)

// ErrUnsupportedMode the requested operation needs the legacy direct-device
// path but the deployment runs RADIUS-only
var ErrUnsupportedMode = errors.New("operation unsupported in this auth mode")

// Result reports what a dispatch actually did. Non-critical sub-steps that
// failed land in Warnings instead of aborting the operation.
type Result struct {
	Applied   bool
	Mechanism string
	Warnings  []string
}

// DeviceClient is the direct-device surface (RouterOS API). Faked in tests.
type DeviceClient interface {
	AddAddressList(ctx context.Context, list, address, comment string) error
	RemoveAddressList(ctx context.Context, list, address string) error
	SetPppProfile(ctx context.Context, username, profile string) error
	DisconnectPppActive(ctx context.Context, username string) error
	Close() error
}

// DeviceDialer opens a DeviceClient against a NAS
type DeviceDialer func(nas *domain.NetNas) (DeviceClient, error)

// GroupStore mutates the RADIUS group tables (the radius-mode mechanism)
type GroupStore interface {
	// SetUserGroup replaces all of the user's memberships with groupname
	SetUserGroup(ctx context.Context, username, groupname string) error
	// SyncGroupReply ensures the group carries the rate-limit attribute;
	// failures here are non-critical
	SyncGroupReply(ctx context.Context, groupname, rateLimit string) error
}

// Dispatcher selects the enforcement mechanism per subscriber
type Dispatcher struct {
	authMode    AuthMode
	monitorMode MonitorMode
	groups      GroupStore
	dial        DeviceDialer
}

func NewDispatcher(authMode AuthMode, monitorMode MonitorMode, groups GroupStore, dial DeviceDialer) *Dispatcher {
	return &Dispatcher{
		authMode:    authMode,
		monitorMode: monitorMode,
		groups:      groups,
		dial:        dial,
	}
}

// ApplyBlock suspends a static-IP subscriber by adding their address to the
// deny list on their router
func (d *Dispatcher) ApplyBlock(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas) (Result, error) {
	if err := validStaticIP(sub.StaticIp); err != nil {
		return Result{Mechanism: MechanismNone}, err
	}
	if err := d.deviceAccess(nas); err != nil {
		return Result{Mechanism: MechanismNone}, err
	}

	client, err := d.dial(nas)
	if err != nil {
		return Result{Mechanism: MechanismFirewallList}, err
	}
	defer client.Close()

	comment := "isolir " + sub.Username
	if err := client.AddAddressList(ctx, IsolirAddressList, sub.StaticIp, comment); err != nil {
		return Result{Mechanism: MechanismFirewallList}, err
	}

	zap.L().Info("firewall block applied",
		zap.String("namespace", "netaction"),
		zap.String("username", sub.Username),
		zap.String("address", sub.StaticIp),
		zap.String("nas", nas.Ipaddr),
	)
	return Result{Applied: true, Mechanism: MechanismFirewallList}, nil
}

// RemoveBlock reverses ApplyBlock
func (d *Dispatcher) RemoveBlock(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas) (Result, error) {
	if err := validStaticIP(sub.StaticIp); err != nil {
		return Result{Mechanism: MechanismNone}, err
	}
	if err := d.deviceAccess(nas); err != nil {
		return Result{Mechanism: MechanismNone}, err
	}

	client, err := d.dial(nas)
	if err != nil {
		return Result{Mechanism: MechanismFirewallList}, err
	}
	defer client.Close()

	if err := client.RemoveAddressList(ctx, IsolirAddressList, sub.StaticIp); err != nil {
		return Result{Mechanism: MechanismFirewallList}, err
	}

	zap.L().Info("firewall block removed",
		zap.String("namespace", "netaction"),
		zap.String("username", sub.Username),
		zap.String("address", sub.StaticIp),
	)
	return Result{Applied: true, Mechanism: MechanismFirewallList}, nil
}

// SetProfile moves a PPPoE subscriber onto profileName. In radius mode this
// is a group-table reassignment plus an attribute sync; in legacy device mode
// it rewrites the PPP secret profile and kicks the active session so the new
// profile takes effect.
func (d *Dispatcher) SetProfile(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas, profileName, rateLimit string) (Result, error) {
	switch d.authMode {
	case AuthRadius:
		if err := d.groups.SetUserGroup(ctx, sub.Username, profileName); err != nil {
			return Result{Mechanism: MechanismRadiusGroup}, err
		}
		res := Result{Applied: true, Mechanism: MechanismRadiusGroup}
		if rateLimit != "" {
			if err := d.groups.SyncGroupReply(ctx, profileName, rateLimit); err != nil {
				res.Warnings = append(res.Warnings, "group reply sync: "+err.Error())
			}
		}
		zap.L().Info("radius group reassigned",
			zap.String("namespace", "netaction"),
			zap.String("username", sub.Username),
			zap.String("group", profileName),
			zap.Strings("warnings", res.Warnings),
		)
		return res, nil

	case AuthDevice:
		if err := d.deviceAccess(nas); err != nil {
			return Result{Mechanism: MechanismNone}, err
		}
		client, err := d.dial(nas)
		if err != nil {
			return Result{Mechanism: MechanismPppoeProfile}, err
		}
		defer client.Close()

		if err := client.SetPppProfile(ctx, sub.Username, profileName); err != nil {
			return Result{Mechanism: MechanismPppoeProfile}, err
		}
		res := Result{Applied: true, Mechanism: MechanismPppoeProfile}
		if err := client.DisconnectPppActive(ctx, sub.Username); err != nil {
			// profile applies on next connect anyway
			res.Warnings = append(res.Warnings, "disconnect active: "+err.Error())
		}
		zap.L().Info("pppoe profile set",
			zap.String("namespace", "netaction"),
			zap.String("username", sub.Username),
			zap.String("profile", profileName),
			zap.Strings("warnings", res.Warnings),
		)
		return res, nil
	}
	return Result{Mechanism: MechanismNone}, errors.Wrap(ErrUnsupportedMode, d.authMode.String())
}

// deviceAccess reports whether the deployment may open a direct RouterOS
// connection: the monitor mode must permit API access and a dialer plus a
// target NAS must be present
func (d *Dispatcher) deviceAccess(nas *domain.NetNas) error {
	if d.monitorMode != MonitorApi {
		return errors.Wrap(ErrUnsupportedMode, "monitor mode "+d.monitorMode.String()+" forbids device calls")
	}
	if d.dial == nil || nas == nil {
		return errors.Wrap(ErrUnsupportedMode, "no device access configured")
	}
	return nil
}

// validStaticIP rejects anything that is not a usable unicast IPv4 address
func validStaticIP(addr string) error {
	ip := net.ParseIP(addr)
	if ip == nil {
		return fmt.Errorf("invalid static ip %q", addr)
	}
	if iplib.EffectiveVersion(ip) != 4 {
		return fmt.Errorf("static ip %q is not ipv4", addr)
	}
	if ip.IsUnspecified() || ip.IsLoopback() || ip.IsMulticast() {
		return fmt.Errorf("static ip %q is not a unicast host address", addr)
	}
	return nil
}
