package main

// A small in-process demo: three nodes form a ring, a file is replicated
// across them, updated through its primary, and read back.

import (
	"fmt"
	"time"

	"ringstore/ring"
)

func main() {
	addrs := []string{"127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"}
	ports := []int{9001, 9002, 9003}

	nodes := make([]*ring.Node, len(addrs))
	for i, addr := range addrs {
		me := ring.NewContact(ring.Hash(addr), addr)
		n, err := ring.NewNode(me, "127.0.0.1", ports[i])
		if err != nil {
			panic(err)
		}
		defer n.Close()
		nodes[i] = n
	}

	nodes[0].CreateRing()
	for _, n := range nodes[1:] {
		if err := n.Join(nodes[0].Me()); err != nil {
			panic(err)
		}
	}
	for _, n := range nodes {
		n.Start(200 * time.Millisecond)
	}

	// Let stabilization converge the links and finger tables.
	time.Sleep(2 * time.Second)

	stored, _ := nodes[0].Distribute("notes", []byte("first draft"), 3)
	fmt.Printf("stored %d replicas of \"notes\"\n", stored)

	if err := nodes[1].Write("notes", []byte("second draft"), 3); err != nil {
		fmt.Println("write failed:", err)
		return
	}
	content, from, err := nodes[2].Read("notes", 3)
	if err != nil {
		fmt.Println("read failed:", err)
		return
	}
	fmt.Printf("read %q from %s\n", content, from.Address)
}
