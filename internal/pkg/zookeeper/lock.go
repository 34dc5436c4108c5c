// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	// 所有物料锁都挂在这个根节点下，每个物料一个子路径
	lockRoot = "/material_locks"

	// 等待前驱节点释放的上限，超过后放弃本次提交
	lockWaitTimeout = 30 * time.Second
)

// DistributedLock 串行化同一物料上的跨实例扣减
// 标准的临时顺序节点方案：序号最小者持锁，其余各自只监听前驱，
// 避免所有等待者在锁释放时同时惊醒
type DistributedLock struct {
	conn     *Conn
	path     string // 例如 /material_locks/material-123
	lockNode string // 持锁后自己创建的节点路径
}

// NewDistributedLock 创建针对一个物料的锁实例
// 根节点和物料路径不存在时顺手补建
func NewDistributedLock(conn *Conn, materialID string) (*DistributedLock, error) {
	if err := ensurePath(conn, lockRoot); err != nil {
		return nil, err
	}
	lockPath := lockRoot + "/" + materialID
	if err := ensurePath(conn, lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensurePath(conn *Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return fmt.Errorf("failed to check lock path %s: %w", path, err)
	}
	if exists {
		return nil
	}
	if _, err := conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("failed to create lock path %s: %w", path, err)
	}
	return nil
}

// Lock 阻塞直到持锁或超时
func (l *DistributedLock) Lock() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	deadline := time.Now().Add(lockWaitTimeout)
	for {
		prevNodePath, acquired, err := l.predecessor()
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		// 只监听紧邻的前驱节点
		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			// 检查的瞬间前驱刚好被删掉，回去重新竞争
			if err == zk.ErrNoNode {
				continue
			}
			return fmt.Errorf("failed to watch previous node: %w", err)
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(time.Until(deadline)):
			_ = l.Unlock()
			return errors.New("timeout waiting for material lock")
		}
	}
}

// predecessor 返回自己的前驱节点路径；自己已是最小节点时 acquired 为 true
func (l *DistributedLock) predecessor() (string, bool, error) {
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		return "", false, fmt.Errorf("failed to get children nodes: %w", err)
	}
	sort.Strings(children)

	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
	if myNodeName == children[0] {
		return "", true, nil
	}
	for i, child := range children {
		if child == myNodeName {
			return l.path + "/" + children[i-1], false, nil
		}
	}
	return "", false, errors.New("own lock node missing from children, session may have expired")
}

// Unlock 释放锁；节点已随会话过期消失时视为成功
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	if err := l.conn.Delete(l.lockNode, -1); err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
