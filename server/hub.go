package server

import (
	"streambreakout/protocol"
)

// ClientID 连接在会话内的唯一编号（自增，不复用）
type ClientID uint64

// Peer 网络连接的发送端；Enqueue 不得阻塞，队列满时返回 false
type Peer interface {
	Enqueue(b []byte) bool
	Close()
}

// Hub 在线连接表；只在会话协程内访问，无需加锁
type Hub struct {
	peers   map[ClientID]Peer
	nextID  ClientID
	metrics *Metrics
}

func NewHub(m *Metrics) *Hub {
	return &Hub{peers: make(map[ClientID]Peer), metrics: m}
}

// Add 登记连接并分配编号
func (h *Hub) Add(p Peer) ClientID {
	h.nextID++
	h.peers[h.nextID] = p
	return h.nextID
}

// Remove 关闭并移除连接；重复移除返回 false
func (h *Hub) Remove(id ClientID) bool {
	p, ok := h.peers[id]
	if !ok {
		return false
	}
	p.Close()
	delete(h.peers, id)
	return true
}

func (h *Hub) Len() int { return len(h.peers) }

// Broadcast 编码一次，投递给全部连接；慢连接只丢自己的帧
func (h *Hub) Broadcast(msgType string, payload any) {
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		Log.Errorw("encode broadcast failed", "type", msgType, "err", err)
		return
	}
	h.metrics.Broadcasts.Inc()
	for id, p := range h.peers {
		if !p.Enqueue(b) {
			h.metrics.SendDropped.Inc()
			Log.Debugw("send queue full, frame dropped", "client", id, "type", msgType)
		}
	}
}

// CloseAll 会话结束时断开全部连接
func (h *Hub) CloseAll() {
	for id, p := range h.peers {
		p.Close()
		delete(h.peers, id)
	}
}
