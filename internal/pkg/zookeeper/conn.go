// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// Conn 封装了 ZooKeeper 连接，只暴露锁实现需要的操作
type Conn struct {
	conn *zk.Conn
}

// Connect 建立到 ZooKeeper 集群的连接
// addrs 格式为 "host1:port1,host2:port2"
func Connect(addrs string) (*Conn, error) {
	conn, _, err := zk.Connect(strings.Split(addrs, ","), 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

func (c *Conn) Exists(path string) (bool, *zk.Stat, error) {
	return c.conn.Exists(path)
}

func (c *Conn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	return c.conn.ExistsW(path)
}

func (c *Conn) Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	return c.conn.Create(path, data, flags, acl)
}

func (c *Conn) CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error) {
	return c.conn.CreateProtectedEphemeralSequential(path, data, acl)
}

func (c *Conn) Children(path string) ([]string, *zk.Stat, error) {
	return c.conn.Children(path)
}

func (c *Conn) Delete(path string, version int32) error {
	return c.conn.Delete(path, version)
}

func (c *Conn) Close() {
	c.conn.Close()
}
