package auth

import (
	"hash/crc32"
	"sort"
	"strconv"
	"sync"
)

// ConsistentHashRing 一致性哈希环，令牌缓存按节点分片 key，配置中新增节点只影响少量 key
type ConsistentHashRing struct {
	mu       sync.RWMutex
	replicas int
	points   []uint32
	owner    map[uint32]string
	nodes    map[string]struct{}
}

// NewConsistentHashRing 创建哈希环，nodes 为空时放入一个默认节点
func NewConsistentHashRing(nodes []string, replicas int) *ConsistentHashRing {
	if replicas <= 0 {
		replicas = 50
	}
	if len(nodes) == 0 {
		nodes = []string{"auth-node-default"}
	}
	r := &ConsistentHashRing{
		replicas: replicas,
		owner:    make(map[uint32]string),
		nodes:    make(map[string]struct{}),
	}
	r.add(nodes...)
	return r
}

func virtualPoint(node string, i int) uint32 {
	return crc32.ChecksumIEEE([]byte(node + "#" + strconv.Itoa(i)))
}

// add 加入节点，重复节点忽略
func (r *ConsistentHashRing) add(nodes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range nodes {
		if _, ok := r.nodes[n]; ok || n == "" {
			continue
		}
		r.nodes[n] = struct{}{}
		for i := 0; i < r.replicas; i++ {
			p := virtualPoint(n, i)
			r.owner[p] = n
			r.points = append(r.points, p)
		}
	}
	sort.Slice(r.points, func(i, j int) bool { return r.points[i] < r.points[j] })
}

// GetNode 顺时针找到第一个虚拟节点
func (r *ConsistentHashRing) GetNode(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 {
		return ""
	}
	h := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i] >= h })
	if idx == len(r.points) {
		idx = 0
	}
	return r.owner[r.points[idx]]
}
