// Package nacos 封装服务实例在 Nacos 上的注册与注销。
package nacos

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Config struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server_addrs"` // "ip1:port1,ip2:port2"
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

// Client 封装了 Nacos 命名客户端
type Client struct {
	namingClient naming_client.INamingClient
	groupName    string
}

// ParseServerConfigs 解析逗号分隔的 host:port 列表。
func ParseServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		host, portStr, ok := strings.Cut(addr, ":")
		if !ok || host == "" {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", portStr)
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(host, port))
	}
	if len(serverConfigs) == 0 {
		return nil, errors.New("no nacos server address configured")
	}
	return serverConfigs, nil
}

// NewClient 创建 Nacos 命名客户端
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	serverConfigs, err := ParseServerConfigs(cfg.ServerAddrs)
	if err != nil {
		return nil, err
	}
	group := cfg.Group
	if group == "" {
		group = "DEFAULT_GROUP"
	}
	if cfg.Namespace == "" {
		zerolog.Ctx(ctx).Warn().Msg("nacos namespace not set, using public namespace")
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(cfg.Namespace),
	)
	namingClient, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create nacos naming client")
	}
	return &Client{namingClient: namingClient, groupName: group}, nil
}

// Register 以临时实例注册，心跳断开后自动摘除
func (c *Client) Register(ctx context.Context, serviceName, ip string, port int) error {
	ok, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "register service with nacos")
	}
	if !ok {
		return fmt.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	zerolog.Ctx(ctx).Info().Str("service", serviceName).Str("ip", ip).Int("port", port).Msg("registered to nacos")
	return nil
}

func (c *Client) Deregister(ctx context.Context, serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "deregister service with nacos")
	}
	zerolog.Ctx(ctx).Info().Str("service", serviceName).Msg("deregistered from nacos")
	return nil
}

func (c *Client) Close() {
	if c.namingClient != nil {
		c.namingClient.CloseClient()
	}
}
