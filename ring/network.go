package ring

// network.go: UDP request/response transport. Outbound calls register a
// message id in the inflight map and block on a reply channel; the read
// loop routes responses back by id and dispatches requests to handlers.
// Handlers run off the read loop because the write path blocks on votes
// and must not stall inbound delivery.

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type Network struct {
	conn        *net.UDPConn
	node        *Node
	mu          sync.Mutex
	inflight    map[string]chan envelope
	readStopped chan struct{}
}

// NewNetwork binds ip:port and starts the read loop.
func NewNetwork(n *Node, ip string, port int) (*Network, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	network := &Network{
		conn:        conn,
		node:        n,
		inflight:    make(map[string]chan envelope),
		readStopped: make(chan struct{}),
	}
	go network.readLoop()
	return network, nil
}

func (network *Network) Close() error {
	if network.conn != nil {
		_ = network.conn.Close()
	}
	select {
	case <-network.readStopped:
	case <-time.After(200 * time.Millisecond):
	}
	return nil
}

func (network *Network) nextMsgID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (network *Network) send(to *net.UDPAddr, env envelope) error {
	b, err := env.marshal()
	if err != nil {
		return err
	}
	_, err = network.conn.WriteToUDP(b, to)
	return err
}

// roundTrip sends env to the contact and waits for the matching response.
func (network *Network) roundTrip(to Contact, env envelope, timeout time.Duration) (envelope, error) {
	dst, err := net.ResolveUDPAddr("udp", to.Address)
	if err != nil {
		return envelope{}, fmt.Errorf("%s to %s: %w", env.Type, to.Address, ErrUnreachable)
	}
	env.From = fromContact(network.node.me)
	env.MsgID = network.nextMsgID()

	ch := make(chan envelope, 1)
	network.mu.Lock()
	network.inflight[env.MsgID] = ch
	network.mu.Unlock()
	defer func() {
		network.mu.Lock()
		delete(network.inflight, env.MsgID)
		network.mu.Unlock()
	}()

	if err := network.send(dst, env); err != nil {
		return envelope{}, fmt.Errorf("%s to %s: %v: %w", env.Type, to.Address, err, ErrUnreachable)
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		return envelope{}, fmt.Errorf("%s to %s: %w", env.Type, to.Address, ErrTimeout)
	}
}

// oneWay fires a message with no reply bookkeeping (votes, acks).
func (network *Network) oneWay(to Contact, env envelope) error {
	dst, err := net.ResolveUDPAddr("udp", to.Address)
	if err != nil {
		return fmt.Errorf("%s to %s: %w", env.Type, to.Address, ErrUnreachable)
	}
	env.From = fromContact(network.node.me)
	env.MsgID = network.nextMsgID()
	if err := network.send(dst, env); err != nil {
		return fmt.Errorf("%s to %s: %v: %w", env.Type, to.Address, err, ErrUnreachable)
	}
	return nil
}

func (network *Network) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, src, err := network.conn.ReadFromUDP(buf)
		if err != nil {
			close(network.readStopped)
			return
		}
		var env envelope
		if err := env.unmarshal(buf[:n]); err != nil {
			continue
		}

		if isResponse(env.Type) {
			network.mu.Lock()
			ch := network.inflight[env.MsgID]
			network.mu.Unlock()
			if ch != nil {
				select {
				case ch <- env:
				default:
				}
			}
			continue
		}

		go network.dispatch(env, src)
	}
}

func (network *Network) dispatch(env envelope, src *net.UDPAddr) {
	n := network.node
	reply := envelope{From: fromContact(n.me), MsgID: env.MsgID}

	switch env.Type {
	case msgPing:
		reply.Type = msgPong

	case msgFindSucc:
		found, next := n.handleFindSuccessor(ID(env.Key))
		reply.Type = msgFindSuccOK
		reply.Found = found
		reply.Next = fromContact(next)

	case msgGetPred:
		pred, ok := n.Predecessor()
		reply.Type = msgGetPredOK
		reply.HasPred = ok
		reply.Pred = fromContact(pred)

	case msgGetSucc:
		reply.Type = msgGetSuccOK
		reply.Next = fromContact(n.Successor())

	case msgNotify:
		n.handleNotify(env.From.toContact())
		reply.Type = msgNotifyOK

	case msgStoreMeta:
		n.storeMetadata(ID(env.Key), env.Filename, env.Content, env.Primary)
		reply.Type = msgStoreMetaOK

	case msgGetMeta:
		meta, ok := n.metadata(ID(env.Key))
		reply.Type = msgGetMetaOK
		reply.Has = ok
		if ok {
			reply.Filename = meta.Filename
			reply.Content = meta.Content
			reply.Primary = meta.Primary
		}

	case msgUpdate:
		reply.Type = msgUpdateOK
		if !n.updateContent(ID(env.Key), env.Content) {
			reply.Err = ErrUnknownReplica.Error()
		}

	case msgWrite:
		set := toReplicaSet(env.Filename, env.Replicas)
		committed, phase := n.handleWriteRequest(env.Filename, env.Content, set)
		reply.Type = msgWriteOK
		reply.Committed = committed
		reply.Phase = phase

	case msgVoteReq:
		n.handleVoteRequest(env.Filename, env.Clock, env.From.toContact())
		return // ack, if any, is sent separately

	case msgVoteAck:
		n.handleVoteAck(env.Filename, env.Clock, env.From.toContact())
		return

	case msgRelease:
		n.handleRelease(env.Filename)
		reply.Type = msgReleaseOK

	default:
		return // ignore unknown types
	}

	if err := network.send(src, reply); err != nil {
		log.Debugf("net: reply %s to %s failed: %v", reply.Type, src, err)
	}
}

// ---- typed outbound calls ----

func (network *Network) ping(to Contact, timeout time.Duration) error {
	_, err := network.roundTrip(to, envelope{Type: msgPing}, timeout)
	return err
}

func (network *Network) findSuccessor(to Contact, key ID, timeout time.Duration) (bool, Contact, error) {
	resp, err := network.roundTrip(to, envelope{Type: msgFindSucc, Key: uint64(key)}, timeout)
	if err != nil {
		return false, Contact{}, err
	}
	return resp.Found, resp.Next.toContact(), nil
}

func (network *Network) getPredecessor(to Contact, timeout time.Duration) (Contact, bool, error) {
	resp, err := network.roundTrip(to, envelope{Type: msgGetPred}, timeout)
	if err != nil {
		return Contact{}, false, err
	}
	return resp.Pred.toContact(), resp.HasPred, nil
}

func (network *Network) getSuccessor(to Contact, timeout time.Duration) (Contact, error) {
	resp, err := network.roundTrip(to, envelope{Type: msgGetSucc}, timeout)
	if err != nil {
		return Contact{}, err
	}
	return resp.Next.toContact(), nil
}

// notify announces this node to a possible successor; the candidate is
// the envelope's From contact.
func (network *Network) notify(to Contact) error {
	_, err := network.roundTrip(to, envelope{Type: msgNotify}, network.node.timeoutRPC)
	return err
}

func (network *Network) storeMetadata(to Contact, key ID, filename string, content []byte, primary bool) error {
	env := envelope{
		Type:     msgStoreMeta,
		Key:      uint64(key),
		Filename: filename,
		Content:  content,
		Primary:  primary,
	}
	_, err := network.roundTrip(to, env, network.node.timeoutRPC)
	return err
}

func (network *Network) getMetadata(to Contact, key ID) (ReplicaMetadata, bool, error) {
	resp, err := network.roundTrip(to, envelope{Type: msgGetMeta, Key: uint64(key)}, network.node.timeoutRPC)
	if err != nil {
		return ReplicaMetadata{}, false, err
	}
	if !resp.Has {
		return ReplicaMetadata{}, false, nil
	}
	return ReplicaMetadata{
		ReplicaKey: key,
		Filename:   resp.Filename,
		Primary:    resp.Primary,
		Content:    resp.Content,
	}, true, nil
}

func (network *Network) updateReplica(to Contact, key ID, content []byte) error {
	resp, err := network.roundTrip(to, envelope{Type: msgUpdate, Key: uint64(key), Content: content}, network.node.timeoutRPC)
	if err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("update %s on %s: %w", key, to.Address, ErrUnknownReplica)
	}
	return nil
}

func (network *Network) requestWrite(to Contact, filename string, content []byte, set ReplicaSet, timeout time.Duration) (bool, string, error) {
	env := envelope{
		Type:     msgWrite,
		Filename: filename,
		Content:  content,
		Replicas: fromReplicaSet(set),
	}
	resp, err := network.roundTrip(to, env, timeout)
	if err != nil {
		return false, "", err
	}
	return resp.Committed, resp.Phase, nil
}

func (network *Network) voteRequest(to Contact, filename string, clock uint64) error {
	return network.oneWay(to, envelope{Type: msgVoteReq, Filename: filename, Clock: clock})
}

// voteAck echoes the clock of the request it answers so the requester can
// tell acks for its current attempt from leftovers of an abandoned one.
func (network *Network) voteAck(to Contact, filename string, clock uint64) error {
	return network.oneWay(to, envelope{Type: msgVoteAck, Filename: filename, Clock: clock})
}

func (network *Network) releaseNotice(to Contact, filename string) error {
	_, err := network.roundTrip(to, envelope{Type: msgRelease, Filename: filename}, network.node.timeoutRPC)
	return err
}
