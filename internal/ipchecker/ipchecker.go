// Package ipchecker restricts internal endpoints to clients from a trusted subnet.
package ipchecker

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkapi/internal/logger"
)

var errNoClientIP = errors.New("no client IP in request")

// IPChecker matches client addresses against a trusted subnet. Without a subnet
// every client is rejected.
type IPChecker struct {
	trustedSubnet  *net.IPNet
	trustedProxies []*net.IPNet
}

// InitOption customizes New.
type InitOption func(*initOptions)

type initOptions struct {
	trustedProxies []string
}

// WithTrustedProxies names the CIDRs of reverse proxies allowed to report the
// client address in X-Real-IP or X-Forwarded-For.
func WithTrustedProxies(cidrs []string) InitOption {
	return func(options *initOptions) {
		options.trustedProxies = cidrs
	}
}

// New parses trustedSubnet in CIDR notation, e.g. "192.168.1.0/24". An empty string
// gives a checker that trusts nobody.
func New(trustedSubnet string, optionsProto ...InitOption) (*IPChecker, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	checker := &IPChecker{}
	for _, cidr := range options.trustedProxies {
		_, proxyNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling for proxy %q: %w", cidr, err)
		}
		checker.trustedProxies = append(checker.trustedProxies, proxyNet)
	}

	if trustedSubnet == "" {
		return checker, nil
	}

	_, allowedNet, err := net.ParseCIDR(trustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling: %w", err)
	}
	checker.trustedSubnet = allowedNet

	return checker, nil
}

// Check reports whether clientIP belongs to the trusted subnet.
func (checker *IPChecker) Check(clientIP net.IP) bool {
	return checker.trustedSubnet != nil && clientIP != nil && checker.trustedSubnet.Contains(clientIP)
}

func (checker *IPChecker) isTrustedProxy(ip net.IP) bool {
	for _, proxyNet := range checker.trustedProxies {
		if proxyNet.Contains(ip) {
			return true
		}
	}
	return false
}

// GetClientIP returns the peer address from RemoteAddr. Forwarding headers are
// read only when that peer is a trusted proxy: X-Real-IP first, then the
// rightmost X-Forwarded-For entry that is not itself a trusted proxy.
func (checker *IPChecker) GetClientIP(request *http.Request) (net.IP, error) {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/GetClientIP(): error while `net.SplitHostPort()` calling: %w", err)
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return nil, errNoClientIP
	}

	if !checker.isTrustedProxy(peer) {
		return peer, nil
	}

	if ip := net.ParseIP(strings.TrimSpace(request.Header.Get("X-Real-IP"))); ip != nil {
		return ip, nil
	}

	if xff := request.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !checker.isTrustedProxy(ip) {
				return ip, nil
			}
		}
	}

	return peer, nil
}

func (checker *IPChecker) IsTrustedSubnetEmpty() bool {
	return checker.trustedSubnet == nil
}

// TrustedOnly lets requests through only from the trusted subnet and answers 403 otherwise.
func (checker *IPChecker) TrustedOnly(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		clientIP, err := checker.GetClientIP(request)
		if err != nil {
			logger.Log.Debugw("cannot determine client IP", zap.Error(err))
		}

		if err != nil || !checker.Check(clientIP) {
			response.Header().Set("Content-Type", "application/json")
			response.WriteHeader(http.StatusForbidden)
			_, _ = response.Write([]byte(`{"error":"forbidden"}`))
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
