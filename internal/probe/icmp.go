package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync/atomic"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protoICMP   = 1
	protoICMPv6 = 58
)

var echoPayload = []byte("hostsweep-echo")

// ICMPPinger sends echo requests over a native ICMP socket.
//
// Unprivileged mode uses datagram ICMP sockets ("udp4"/"udp6"), which Linux
// allows when net.ipv4.ping_group_range covers the process group and macOS
// allows by default. Privileged mode uses raw sockets and needs root or
// CAP_NET_RAW.
type ICMPPinger struct {
	Resolver   Resolver
	Privileged bool

	seq atomic.Uint32
}

func NewICMPPinger(r Resolver, privileged bool) *ICMPPinger {
	if r == nil {
		r = net.DefaultResolver
	}
	return &ICMPPinger{Resolver: r, Privileged: privileged}
}

func (p *ICMPPinger) Name() string {
	if p.Privileged {
		return "icmp-raw"
	}
	return "icmp"
}

func (p *ICMPPinger) Ping(ctx context.Context, host string) error {
	ip, err := p.resolve(ctx, host)
	if err != nil {
		return err
	}

	network, listen := icmpNetwork(!ip.Is4(), p.Privileged)
	proto := protoICMP
	var reqType, replyType icmp.Type = ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	if !ip.Is4() {
		proto = protoICMPv6
		reqType, replyType = ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
	}

	conn, err := icmp.ListenPacket(network, listen)
	if err != nil {
		return fmt.Errorf("icmp listen: %w", err)
	}
	defer conn.Close()

	// Unblock ReadFrom when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	id := os.Getpid() & 0xffff
	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: reqType,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: echoPayload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("icmp marshal: %w", err)
	}

	var dst net.Addr = &net.UDPAddr{IP: ip.AsSlice(), Zone: ip.Zone()}
	if p.Privileged {
		dst = &net.IPAddr{IP: ip.AsSlice(), Zone: ip.Zone()}
	}
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return fmt.Errorf("icmp write: %w", err)
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("icmp read: %w", err)
		}
		if addrIP(peer) != ip.WithZone("") {
			continue
		}
		rm, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil || rm.Type != replyType {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// Datagram sockets rewrite the identifier; only raw replies carry ours.
		if p.Privileged && echo.ID != id {
			continue
		}
		return nil
	}
}

func (p *ICMPPinger) resolve(ctx context.Context, host string) (netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.Unmap(), nil
	}
	addrs, err := p.Resolver.LookupHost(ctx, host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", host, err)
	}
	var v6 netip.Addr
	for _, a := range addrs {
		ip, err := netip.ParseAddr(a)
		if err != nil {
			continue
		}
		ip = ip.Unmap()
		if ip.Is4() {
			return ip, nil
		}
		if !v6.IsValid() {
			v6 = ip
		}
	}
	if v6.IsValid() {
		return v6, nil
	}
	return netip.Addr{}, fmt.Errorf("resolve %s: %w", host, errNoAddress)
}

func addrIP(a net.Addr) netip.Addr {
	var ip net.IP
	switch v := a.(type) {
	case *net.UDPAddr:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// icmpAvailable reports whether an ICMP socket of the given flavour can be
// opened by this process for either address family.
func icmpAvailable(privileged bool) error {
	err4 := icmpListen(icmpNetwork(false, privileged))
	if err4 == nil {
		return nil
	}
	err6 := icmpListen(icmpNetwork(true, privileged))
	if err6 == nil {
		return nil
	}
	return errors.Join(err4, err6)
}

func icmpNetwork(v6, privileged bool) (network, addr string) {
	switch {
	case v6 && privileged:
		return "ip6:ipv6-icmp", "::"
	case v6:
		return "udp6", "::"
	case privileged:
		return "ip4:icmp", "0.0.0.0"
	default:
		return "udp4", "0.0.0.0"
	}
}

func icmpListen(network, addr string) error {
	c, err := icmp.ListenPacket(network, addr)
	if err != nil {
		return err
	}
	return c.Close()
}
