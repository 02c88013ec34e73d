package ring

// wire.go: on-wire message types and (un)marshaling. One envelope covers
// every message; fields are sparse and omitted when empty.

import "encoding/json"

type msgType string

const (
	msgPing        msgType = "PING"
	msgPong        msgType = "PONG"
	msgFindSucc    msgType = "FIND_SUCC"
	msgFindSuccOK  msgType = "FIND_SUCC_OK"
	msgGetPred     msgType = "GET_PRED"
	msgGetPredOK   msgType = "GET_PRED_OK"
	msgGetSucc     msgType = "GET_SUCC"
	msgGetSuccOK   msgType = "GET_SUCC_OK"
	msgNotify      msgType = "NOTIFY"
	msgNotifyOK    msgType = "NOTIFY_OK"
	msgStoreMeta   msgType = "STORE_META"
	msgStoreMetaOK msgType = "STORE_META_OK"
	msgGetMeta     msgType = "GET_META"
	msgGetMetaOK   msgType = "GET_META_OK"
	msgUpdate      msgType = "UPDATE"
	msgUpdateOK    msgType = "UPDATE_OK"
	msgWrite       msgType = "WRITE"
	msgWriteOK     msgType = "WRITE_OK"
	// Vote acks are not responses: a peer may defer one and deliver it
	// long after the request, so both vote directions are one-way.
	msgVoteReq   msgType = "VOTE_REQ"
	msgVoteAck   msgType = "VOTE_ACK"
	msgRelease   msgType = "RELEASE"
	msgReleaseOK msgType = "RELEASE_OK"
)

// isResponse tells the read loop which messages settle an inflight call.
func isResponse(t msgType) bool {
	switch t {
	case msgPong, msgFindSuccOK, msgGetPredOK, msgGetSuccOK, msgNotifyOK,
		msgStoreMetaOK, msgGetMetaOK, msgUpdateOK, msgWriteOK, msgReleaseOK:
		return true
	}
	return false
}

type wireContact struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
}

func fromContact(c Contact) wireContact {
	return wireContact{ID: uint64(c.ID), Address: c.Address}
}

func (w wireContact) toContact() Contact {
	return Contact{ID: ID(w.ID), Address: w.Address}
}

type wireReplica struct {
	Owner   wireContact `json:"owner"`
	Key     uint64      `json:"key"`
	Primary bool        `json:"primary"`
}

func fromReplicaSet(set ReplicaSet) []wireReplica {
	out := make([]wireReplica, 0, len(set))
	for _, r := range set {
		out = append(out, wireReplica{
			Owner:   fromContact(r.Owner),
			Key:     uint64(r.Meta.ReplicaKey),
			Primary: r.Meta.Primary,
		})
	}
	return out
}

func toReplicaSet(filename string, ws []wireReplica) ReplicaSet {
	set := make(ReplicaSet, 0, len(ws))
	for _, w := range ws {
		set = append(set, ReplicaInfo{
			Owner: w.Owner.toContact(),
			Meta: ReplicaMetadata{
				ReplicaKey: ID(w.Key),
				Filename:   filename,
				Primary:    w.Primary,
			},
		})
	}
	return set
}

// envelope is the common frame for every message.
type envelope struct {
	Type  msgType     `json:"type"`
	From  wireContact `json:"from"`
	MsgID string      `json:"msg_id"`

	Key      uint64      `json:"key,omitempty"`   // lookup target / replica key
	Found    bool        `json:"found,omitempty"` // FIND_SUCC_OK
	Next     wireContact `json:"next,omitempty"`
	Pred     wireContact `json:"pred,omitempty"`
	HasPred  bool        `json:"has_pred,omitempty"`
	Filename string      `json:"filename,omitempty"`
	Content  []byte      `json:"content,omitempty"`
	Primary  bool        `json:"primary,omitempty"`
	Has      bool        `json:"has,omitempty"` // GET_META_OK: key present

	Replicas []wireReplica `json:"replicas,omitempty"` // WRITE

	Clock     uint64 `json:"clock,omitempty"` // VOTE_REQ stamp, echoed in VOTE_ACK
	Committed bool   `json:"committed,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Err       string `json:"err,omitempty"`
}

func (e envelope) marshal() ([]byte, error)  { return json.Marshal(e) }
func (e *envelope) unmarshal(b []byte) error { return json.Unmarshal(b, e) }
