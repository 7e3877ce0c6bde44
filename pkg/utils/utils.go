package utils

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackpal/gateway"
)

type ContextKey string

const (
	ConnIDKey ContextKey = "connId"
)

// GetLocalIP returns the LAN address peers should dial. It prefers the
// interface that shares a subnet with the default gateway.
func GetLocalIP() (string, error) {
	ip, err := gatewayLocalIP()
	if err == nil {
		return ip.String(), nil
	}
	slog.Debug("Gateway lookup failed, falling back to UDP dial", "error", err)

	// Connect to a dummy address; doesn't have to be reachable
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func gatewayLocalIP() (net.IP, error) {
	gwIP, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("discover gateway: %w", err)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() || !ip4.IsGlobalUnicast() {
				continue
			}
			if ipnet.Contains(gwIP) {
				return ip4, nil
			}
		}
	}

	return nil, fmt.Errorf("no local IPv4 address in the subnet of gateway %s", gwIP)
}

// GetPeerIP does not consider proxies; the protocol has no forwarding headers.
func GetPeerIP(addr net.Addr) (string, error) {
	if addr == nil {
		return "", errors.New("nil address")
	}
	ip, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", err
	}
	return ip, nil
}

var ErrForbiddenPath = errors.New("forbidden path")

// SecureJoin ensures that the joined path is within the base directory
func SecureJoin(base, path string) (string, error) {
	absRoot, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}

	// because macOS is a special snowflake
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", err
	}
	absRoot = filepath.Clean(absRoot)

	absPath, err := filepath.Abs(filepath.Join(absRoot, filepath.FromSlash(path)))
	if err != nil {
		return "", err
	}

	parentPath := filepath.Dir(absPath)
	fileName := filepath.Base(absPath)

	resolved, err := filepath.EvalSymlinks(absPath)
	switch {
	case err == nil:
		absPath = resolved
	case os.IsNotExist(err):
		if evalParent, err := filepath.EvalSymlinks(parentPath); err == nil {
			absPath = filepath.Join(evalParent, fileName)
		}
	default:
		return "", err
	}

	absPath = filepath.Clean(absPath)

	// prevent prefix matching for path traversal
	if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) && absPath != absRoot {
		return "", ErrForbiddenPath
	}

	return absPath, nil
}

// IsPlainFileName reports whether name can be used as a single path element
// inside a directory without escaping it.
func IsPlainFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
