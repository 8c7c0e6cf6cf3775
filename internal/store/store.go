package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// - 每个谜题一条记录：键 puzzle/<id>，值为 JSON 快照。
// - 快照整体覆盖写；不做增量合并（合并语义在 answer.Restore 与尝试集并集中完成）。

// Snapshot: 一轮结束时的进度快照。
type Snapshot struct {
	PuzzleID int       `json:"puzzle_id"`
	Slots    int       `json:"slots"`
	Tokens   []string  `json:"tokens"` // 未解出槽位为空串
	Tried    []string  `json:"tried"`
	Round    int       `json:"round"`
	SavedAt  time.Time `json:"saved_at"`
}

// ErrNotFound: 该谜题尚无快照。
var ErrNotFound = errors.New("checkpoint not found")

// Config 为存储打开参数。
type Config struct {
	// Dir: 持久化目录；InMemory 为 true 时忽略。
	Dir        string
	InMemory   bool
	SyncWrites bool
}

// Store 基于 badger 保存断点。
type Store struct {
	db *badger.DB
}

// Open 打开（必要时创建）断点库。
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("store: dir is required for persistent checkpoints")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create dir %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory 用于测试。
func OpenInMemory() (*Store, error) { return Open(Config{InMemory: true}) }

func key(id int) []byte { return []byte("puzzle/" + strconv.Itoa(id)) }

// Save 覆盖写 snap.PuzzleID 的快照。
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(snap.PuzzleID), b)
	}); err != nil {
		return fmt.Errorf("store: save puzzle %d: %w", snap.PuzzleID, err)
	}
	return nil
}

// Load 读取谜题 id 的快照；不存在时返回 ErrNotFound。
func (s *Store) Load(ctx context.Context, id int) (Snapshot, error) {
	var snap Snapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &snap) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: load puzzle %d: %w", id, err)
	}
	return snap, nil
}

// Delete 删除快照（谜题完成后调用）；不存在时不报错。
func (s *Store) Delete(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error { return txn.Delete(key(id)) })
}

// Close 关闭底层库。
func (s *Store) Close() error { return s.db.Close() }
