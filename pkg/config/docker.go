package config

import (
	"os"
	"sync"
)

const dockerHostAlias = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool

	// inDocker is replaced in tests.
	inDocker = IsRunningInDocker
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps a loopback host to host.docker.internal when
// running in a container, so a database or Redis on the developer's machine
// stays reachable. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	if !inDocker() {
		return host
	}
	if isLoopback(host) {
		return dockerHostAlias
	}
	return host
}

// ResolveBindAddrForDocker widens a loopback bind address to all interfaces
// inside a container, where loopback is unreachable through published ports.
func ResolveBindAddrForDocker(addr string) string {
	if inDocker() && isLoopback(addr) {
		return "0.0.0.0"
	}
	return addr
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
