package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"ringstore/ring"
)

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, p, nil
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "UDP listen address for this node")
	join := flag.String("join", "", "address of a ring member to join through (default: create a new ring)")
	idHex := flag.String("id", "", "ring identifier override, hex (default: hash of -addr)")
	replicas := flag.Int("replicas", 3, "replication factor for store/read/write")
	stabilize := flag.Int("stabilize", 500, "maintenance interval in milliseconds")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	id := ring.Hash(*addr)
	if s := strings.TrimSpace(*idHex); s != "" {
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERR parsing -id:", err)
			os.Exit(2)
		}
		id = ring.ID(v)
	}
	me := ring.NewContact(id, *addr)

	ip, port, err := splitHostPort(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERR parsing -addr:", err)
		os.Exit(2)
	}

	node, err := ring.NewNode(me, ip, port)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERR starting node:", err)
		os.Exit(2)
	}
	defer node.Close()

	if s := strings.TrimSpace(*join); s != "" && s != *addr {
		bootstrap := ring.NewContact(ring.Hash(s), s)
		// Give the local socket a beat before dialing out on localhost.
		time.Sleep(150 * time.Millisecond)
		if err := node.Join(bootstrap); err != nil {
			fmt.Fprintln(os.Stderr, "ERR joining:", err)
			os.Exit(1)
		}
	} else {
		node.CreateRing()
	}
	node.Start(time.Duration(*stabilize) * time.Millisecond)

	cli := ring.NewCLI(node, *replicas, os.Stdin, os.Stdout, nil)

	fmt.Printf("node up: id=%s addr=%s\n", me.ID, me.Address)
	fmt.Println("commands: store <file> <content> | read <file> | write <file> <content> | locate <file> | state | exit")

	if err := cli.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
	}
}
