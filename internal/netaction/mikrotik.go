package netaction

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/go-routeros/routeros/v3"
	"go.uber.org/zap"
)

// MikrotikClient implements DeviceClient over the RouterOS API
type MikrotikClient struct {
	client *routeros.Client
	host   string
}

// DialMikrotik opens a RouterOS API connection to the NAS. Satisfies
// DeviceDialer.
func DialMikrotik(nas *domain.NetNas) (DeviceClient, error) {
	port := nas.ApiPort
	if port <= 0 {
		port = 8728
	}
	addr := net.JoinHostPort(nas.Ipaddr, fmt.Sprintf("%d", port))

	client, err := routeros.Dial(addr, nas.Username, nas.Password)
	if err != nil {
		zap.L().Error("failed to connect to routeros",
			zap.String("namespace", "netaction"),
			zap.String("host", nas.Ipaddr),
			zap.Int("port", port),
			zap.Error(err),
		)
		return nil, fmt.Errorf("routeros connection failed: %w", err)
	}
	return &MikrotikClient{client: client, host: nas.Ipaddr}, nil
}

// AddAddressList adds address to the firewall list. An "already have such
// entry" reply is treated as success so re-applying a block is idempotent.
func (c *MikrotikClient) AddAddressList(ctx context.Context, list, address, comment string) error {
	args := []string{
		"/ip/firewall/address-list/add",
		"=list=" + list,
		"=address=" + address,
		"=comment=" + comment,
	}
	_, err := c.client.RunArgs(args)
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("address-list add: %w", err)
	}
	return nil
}

// RemoveAddressList removes every entry for address from the list. A missing
// entry is success.
func (c *MikrotikClient) RemoveAddressList(ctx context.Context, list, address string) error {
	reply, err := c.client.RunArgs([]string{
		"/ip/firewall/address-list/print",
		"?list=" + list,
		"?address=" + address,
	})
	if err != nil {
		return fmt.Errorf("address-list print: %w", err)
	}
	for _, re := range reply.Re {
		id := re.Map[".id"]
		if id == "" {
			continue
		}
		if _, err := c.client.RunArgs([]string{
			"/ip/firewall/address-list/remove",
			"=.id=" + id,
		}); err != nil {
			return fmt.Errorf("address-list remove: %w", err)
		}
	}
	return nil
}

// SetPppProfile rewrites the PPP secret's profile
func (c *MikrotikClient) SetPppProfile(ctx context.Context, username, profile string) error {
	reply, err := c.client.RunArgs([]string{
		"/ppp/secret/print",
		"?name=" + username,
	})
	if err != nil {
		return fmt.Errorf("ppp secret print: %w", err)
	}
	if len(reply.Re) == 0 {
		return fmt.Errorf("ppp secret %q not found on %s", username, c.host)
	}
	id := reply.Re[0].Map[".id"]
	if _, err := c.client.RunArgs([]string{
		"/ppp/secret/set",
		"=.id=" + id,
		"=profile=" + profile,
	}); err != nil {
		return fmt.Errorf("ppp secret set: %w", err)
	}
	return nil
}

// DisconnectPppActive kills the subscriber's active PPP session so the new
// profile applies on reconnect. No active session is success.
func (c *MikrotikClient) DisconnectPppActive(ctx context.Context, username string) error {
	reply, err := c.client.RunArgs([]string{
		"/ppp/active/print",
		"?name=" + username,
	})
	if err != nil {
		return fmt.Errorf("ppp active print: %w", err)
	}
	for _, re := range reply.Re {
		id := re.Map[".id"]
		if id == "" {
			continue
		}
		if _, err := c.client.RunArgs([]string{
			"/ppp/active/remove",
			"=.id=" + id,
		}); err != nil {
			return fmt.Errorf("ppp active remove: %w", err)
		}
	}
	return nil
}

// Close closes the RouterOS connection
func (c *MikrotikClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already have") || strings.Contains(msg, "already exists")
}
