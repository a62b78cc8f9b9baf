// Package zookeeper 提供基于临时顺序节点的分布式锁。
package zookeeper

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/distributed_locks"

var ErrLockHeld = errors.New("zookeeper: lock is held by another owner")

type Config struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// Conn 是锁用到的 *zk.Conn 方法子集。
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Delete(path string, version int32) error
}

// Connect 建立 ZooKeeper 会话，调用方负责 Close。
func Connect(cfg Config) (*zk.Conn, error) {
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, _, err := zk.Connect(cfg.Servers, timeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	return conn, nil
}

// DistributedLock 是 /distributed_locks/<resource> 下的一把锁。
type DistributedLock struct {
	conn     Conn
	path     string
	lockNode string // 持有锁时自己创建的节点
}

// NewDistributedLock 创建锁对象并确保父节点存在。
func NewDistributedLock(conn Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensureNode(conn Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err == nil && exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "create lock node %s", path)
	}
	return nil
}

// Lock 获取锁，拿不到时等待前一个节点被删除，直到 ctx 结束。
func (l *DistributedLock) Lock(ctx context.Context) error {
	if err := l.enqueue(); err != nil {
		return err
	}
	for {
		prev, err := l.predecessor()
		if err != nil {
			l.abandon()
			return err
		}
		if prev == "" {
			return nil
		}

		exists, _, events, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "watch previous node")
		}
		if !exists {
			continue
		}
		select {
		case <-events:
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		}
	}
}

// TryLock 只尝试一次，锁被占用时返回 ErrLockHeld。
func (l *DistributedLock) TryLock() error {
	if err := l.enqueue(); err != nil {
		return err
	}
	prev, err := l.predecessor()
	if err != nil {
		l.abandon()
		return err
	}
	if prev != "" {
		l.abandon()
		return ErrLockHeld
	}
	return nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("zookeeper: no lock to unlock")
	}
	if err := l.conn.Delete(l.lockNode, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

func (l *DistributedLock) enqueue() error {
	node, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	l.lockNode = node
	return nil
}

func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
}

// predecessor 返回排在自己前面的节点名，自己最小时返回空串。
// protected 节点带有随机前缀，只能按末尾的序号排序。
func (l *DistributedLock) predecessor() (string, error) {
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		return "", errors.Wrap(err, "list lock nodes")
	}
	sort.Slice(children, func(i, j int) bool {
		return sequence(children[i]) < sequence(children[j])
	})

	mine := strings.TrimPrefix(l.lockNode, l.path+"/")
	for i, child := range children {
		if child != mine {
			continue
		}
		if i == 0 {
			return "", nil
		}
		return children[i-1], nil
	}
	return "", errors.New("zookeeper: own lock node disappeared")
}

func sequence(node string) string {
	if len(node) < 10 {
		return node
	}
	return node[len(node)-10:]
}
