// internal/service/reservation/infrastructure/zk_locker.go
package infrastructure

import (
	"taller/internal/pkg/zookeeper"
)

// ZkMaterialLocker 用 ZooKeeper 实现跨实例的物料互斥
// 只在存储不提供行级隔离、或多个引擎实例共享一个弱隔离存储时启用；
// 进程内锁在多实例部署下挡不住并发提交，所以这里必须是分布式锁
type ZkMaterialLocker struct {
	conn *zookeeper.Conn
}

func NewZkMaterialLocker(conn *zookeeper.Conn) *ZkMaterialLocker {
	return &ZkMaterialLocker{conn: conn}
}

// Acquire 实现 domain.MaterialLocker，阻塞直到拿到锁或超时
func (l *ZkMaterialLocker) Acquire(materialID string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, materialID)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	return func() {
		// 释放失败时临时节点会随会话过期自动清理
		_ = lock.Unlock()
	}, nil
}
