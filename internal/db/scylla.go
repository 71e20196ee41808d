package db

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/gocql/gocql"
)

// ScyllaConfig locates the cluster and the keyspace holding the chat tables.
type ScyllaConfig struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// ScyllaStore keeps messages in ScyllaDB, one partition per conversation.
type ScyllaStore struct {
	session *gocql.Session
	log     *slog.Logger
	now     func() time.Time
}

// OpenScylla bootstraps the keyspace and tables, then opens a session on them.
func OpenScylla(ctx context.Context, cfg ScyllaConfig, log *slog.Logger) (*ScyllaStore, error) {
	if cfg.Keyspace == "" {
		cfg.Keyspace = "chat"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	system, err := connect(cfg, "system")
	if err != nil {
		return nil, fmt.Errorf("connect to cluster: %w", err)
	}
	err = ensureKeyspace(ctx, system, cfg.Keyspace)
	system.Close()
	if err != nil {
		return nil, err
	}

	session, err := connect(cfg, cfg.Keyspace)
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", cfg.Keyspace, err)
	}
	if err := ensureTables(ctx, session); err != nil {
		session.Close()
		return nil, err
	}
	log.Info("scylla store opened", "hosts", cfg.Hosts, "keyspace", cfg.Keyspace)
	return &ScyllaStore{session: session, log: log, now: time.Now}, nil
}

func connect(cfg ScyllaConfig, keyspace string) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout
	return cluster.CreateSession()
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, keyspace string) error {
	stmt := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor' : 1}
    `, keyspace)
	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

func ensureTables(ctx context.Context, session *gocql.Session) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			conversation text,
			created_at timestamp,
			id text,
			sender_id text,
			receiver_id text,
			content text,
			PRIMARY KEY ((conversation), created_at, id)
		) WITH CLUSTERING ORDER BY (created_at ASC, id ASC)`,
		`CREATE TABLE IF NOT EXISTS users (
			id text PRIMARY KEY,
			name text,
			email text,
			image text,
			registered_at timestamp
		)`,
	}
	for _, stmt := range stmts {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// Scylla timestamps have millisecond precision.
func (s *ScyllaStore) Append(ctx context.Context, d chat.Draft) (chat.Message, error) {
	m, err := prepareAppend(d, s.now(), time.Millisecond)
	if err != nil {
		return chat.Message{}, err
	}
	err = s.session.Query(
		`INSERT INTO messages (conversation, created_at, id, sender_id, receiver_id, content) VALUES (?, ?, ?, ?, ?, ?)`,
		chat.ConversationKey(m.SenderID, m.ReceiverID), m.CreatedAt, m.ID, m.SenderID, m.ReceiverID, m.Content,
	).WithContext(ctx).Exec()
	if err != nil {
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

func (s *ScyllaStore) ListConversation(ctx context.Context, a, b string) ([]chat.Message, error) {
	messages := []chat.Message{}
	if a == "" || b == "" {
		return messages, nil
	}
	scanner := s.session.Query(
		`SELECT id, sender_id, receiver_id, content, created_at FROM messages WHERE conversation = ?`,
		chat.ConversationKey(a, b),
	).WithContext(ctx).Iter().Scanner()
	for scanner.Next() {
		var m chat.Message
		if err := scanner.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return messages, nil
}

func (s *ScyllaStore) ListUsers(ctx context.Context) ([]chat.User, error) {
	users := []chat.User{}
	scanner := s.session.Query(`SELECT id, name, email, image, registered_at FROM users`).
		WithContext(ctx).Iter().Scanner()
	for scanner.Next() {
		var u chat.User
		if err := scanner.Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if !u.RegisteredAt.IsZero() {
			u.RegisteredAt = u.RegisteredAt.UTC()
		}
		users = append(users, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	// partitions come back in token order
	slices.SortFunc(users, func(x, y chat.User) int { return strings.Compare(x.ID, y.ID) })
	return users, nil
}

func (s *ScyllaStore) UpsertUser(ctx context.Context, u chat.User) error {
	if err := chat.ValidateUser(u); err != nil {
		return err
	}
	q := `UPDATE users SET name = ?, email = ?, image = ? WHERE id = ?`
	args := []any{u.Name, u.Email, u.Image, u.ID}
	if !u.RegisteredAt.IsZero() {
		q = `UPDATE users SET name = ?, email = ?, image = ?, registered_at = ? WHERE id = ?`
		args = []any{u.Name, u.Email, u.Image, u.RegisteredAt.UTC(), u.ID}
	}
	if err := s.session.Query(q, args...).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	// first sighting gets a registration time, later updates keep it
	if u.RegisteredAt.IsZero() {
		if _, err := s.session.Query(
			`UPDATE users SET registered_at = ? WHERE id = ? IF registered_at = null`,
			s.now().UTC().Truncate(time.Millisecond), u.ID,
		).WithContext(ctx).ScanCAS(); err != nil {
			return fmt.Errorf("stamp user registration: %w", err)
		}
	}
	return nil
}

func (s *ScyllaStore) Close() error {
	s.log.Info("closing scylla session")
	s.session.Close()
	return nil
}
