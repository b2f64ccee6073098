// Package forq monitors the queues of a forq message queue server by reading
// its SQLite database directly.
package forq

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

const (
	readyStatus      = 0
	processingStatus = 1
	failedStatus     = 2

	// dlqSuffix is appended by forq to the name of a queue to form its dead letter queue
	dlqSuffix = "-dlq"

	SettingDBPath       = "dbPath"
	SettingMaxItems     = "maxItems"
	SettingQueueTTLMs   = "queueTtlMs"
	SettingCreateSchema = "createSchema"
	SettingCommands     = "commands"

	defaultQueueTTLMs = int64(24 * time.Hour / time.Millisecond)
)

// Descriptor identifies the forq adapter.
var Descriptor = backend.Descriptor{Name: "Forq", Version: "1.0", QueueType: "SQLite"}

func init() {
	backend.RegisterAdapterFactory(Descriptor, New)
}

// Adapter implements backend.Adapter on top of a forq database.
type Adapter struct {
	db         *sql.DB
	queues     []backend.Queue
	queueIndex map[string]backend.Queue
	state      backend.WatchState
	maxItems   int
	queueTTLMs int64
	commands   []string
	now        func() time.Time
}

// New creates an uninitialized forq adapter.
func New() backend.Adapter {
	return &Adapter{now: time.Now}
}

// Descriptor returns the forq descriptor.
func (a *Adapter) Descriptor() backend.Descriptor {
	return Descriptor
}

// MonitorQueues returns the queues passed to Initialize.
func (a *Adapter) MonitorQueues() []backend.Queue {
	return a.queues
}

// Initialize opens the forq database. The schema is created when the
// createSchema setting is true, which is meant for fresh databases.
func (a *Adapter) Initialize(settings backend.ConnectionSettings, queues []backend.Queue, state backend.WatchState) error {
	dbPath := settings.Get(SettingDBPath, "")
	if dbPath == "" {
		return fmt.Errorf("missing required setting '%s'", SettingDBPath)
	}

	maxItems, err := strconv.Atoi(settings.Get(SettingMaxItems, strconv.Itoa(backend.MaxItemsPerQueue)))
	if err != nil || maxItems <= 0 {
		return fmt.Errorf("setting '%s' must be a positive number", SettingMaxItems)
	}

	queueTTLMs, err := strconv.ParseInt(settings.Get(SettingQueueTTLMs, strconv.FormatInt(defaultQueueTTLMs, 10)), 10, 64)
	if err != nil || queueTTLMs <= 0 {
		return fmt.Errorf("setting '%s' must be a positive number", SettingQueueTTLMs)
	}

	if createSchema, _ := strconv.ParseBool(settings.Get(SettingCreateSchema, "false")); createSchema {
		if err := ensureSchema(dbPath); err != nil {
			return err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open forq database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	a.db = db
	a.queues = queues
	a.state = state
	a.maxItems = maxItems
	a.queueTTLMs = queueTTLMs
	a.queueIndex = make(map[string]backend.Queue, len(queues))
	for _, q := range queues {
		a.queueIndex[q.Name] = q
	}
	a.commands = settings.List(SettingCommands)

	return nil
}

// Terminate closes the database.
func (a *Adapter) Terminate() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// GetUnprocessedMessages returns the messages stored for the category's queues.
// Fetches of regular categories also surface the dead-lettered messages of
// their queues when the matching dead letter queue is monitored as an error queue.
func (a *Adapter) GetUnprocessedMessages(ctx context.Context, req backend.FetchUnprocessedRequest) (backend.FetchResult, error) {
	if a.db == nil {
		return backend.FetchResult{}, backend.ErrNotInitialized
	}

	names := backend.QueuesOf(a.queues, req.Category)
	if len(names) == 0 {
		return backend.FetchResult{Status: backend.FetchOK}, nil
	}

	count, err := a.countMessages(ctx, names)
	if err != nil {
		return a.connectionFailed(ctx, err)
	}

	items, err := a.selectMessages(ctx, names)
	if err != nil {
		return a.connectionFailed(ctx, err)
	}

	if req.Category != backend.Error {
		surfaced, err := a.selectMessages(ctx, a.deadLetterQueuesOf(names))
		if err != nil {
			return a.connectionFailed(ctx, err)
		}
		items = append(items, surfaced...)
	}

	if count == req.KnownCount && allKnown(items, req.KnownItems) {
		return backend.FetchResult{Status: backend.FetchNotChanged}, nil
	}

	return backend.FetchResult{Status: backend.FetchOK, Items: items, Count: count}, nil
}

// GetProcessedMessages returns nothing: forq deletes a message once it is acknowledged.
func (a *Adapter) GetProcessedMessages(_ context.Context, _ backend.Category, _ time.Time, _ []backend.Item) (backend.FetchResult, error) {
	return backend.FetchResult{Status: backend.FetchOK}, nil
}

// PurgeMessage deletes one message.
func (a *Adapter) PurgeMessage(ctx context.Context, item backend.Item) error {
	query := `
		DELETE FROM messages
		WHERE id = ? AND queue = ?;`

	return a.exec(ctx, "delete message", query,
		item.ID,         // WHERE id = ?
		item.Queue.Name, // AND queue = ?
	)
}

// PurgeAllMessages deletes every message of the monitored queues.
func (a *Adapter) PurgeAllMessages(ctx context.Context) error {
	names := make([]string, 0, len(a.queues))
	for _, q := range a.queues {
		names = append(names, q.Name)
	}
	if len(names) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		DELETE FROM messages
		WHERE queue IN (%s);`, placeholders(len(names)))

	return a.exec(ctx, "delete messages", query, args(names)...)
}

// PurgeErrorMessages deletes every message of one dead letter queue.
func (a *Adapter) PurgeErrorMessages(ctx context.Context, queueName string) error {
	query := `
		DELETE FROM messages
		WHERE queue = ? AND is_dlq = TRUE;`

	return a.exec(ctx, "delete dead letter messages", query,
		queueName, // WHERE queue = ?
	)
}

// PurgeErrorAllMessages deletes every message of the monitored dead letter queues.
func (a *Adapter) PurgeErrorAllMessages(ctx context.Context) error {
	names := backend.QueuesOf(a.queues, backend.Error)
	if len(names) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		DELETE FROM messages
		WHERE queue IN (%s) AND is_dlq = TRUE;`, placeholders(len(names)))

	return a.exec(ctx, "delete dead letter messages", query, args(names)...)
}

// MoveErrorMessageToOriginQueue puts a dead-lettered message back on the queue
// it failed on, ready for immediate delivery with a fresh attempt budget.
func (a *Adapter) MoveErrorMessageToOriginQueue(ctx context.Context, item backend.Item) error {
	nowMs := a.now().UnixMilli()

	query := `
		UPDATE messages
		SET
			queue = substr(queue, 1, length(queue) - 4),
			is_dlq = FALSE,
			status = ?,
			attempts = 0,
			process_after = ?,
			processing_started_at = NULL,
			failure_reason = NULL,
			updated_at = ?,
			expires_after = ?
		WHERE id = ? AND queue = ? AND is_dlq = TRUE;`

	result, err := a.db.ExecContext(ctx, query,
		readyStatus,        // status = ?
		nowMs,              // process_after = ?
		nowMs,              // updated_at = ?
		nowMs+a.queueTTLMs, // expires_after = ?
		item.ID,            // WHERE id = ?
		item.Queue.Name,    // AND queue = ?
	)
	if err != nil {
		return fmt.Errorf("failed to requeue message %s: %w", item.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to requeue message %s: %w", item.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("message %s not found in dead letter queue '%s'", item.ID, item.Queue.Name)
	}
	return nil
}

// MoveAllErrorMessagesToOriginQueue requeues every message of a dead letter queue.
func (a *Adapter) MoveAllErrorMessagesToOriginQueue(ctx context.Context, queueName string) error {
	if !strings.HasSuffix(queueName, dlqSuffix) {
		return fmt.Errorf("'%s' is not a dead letter queue", queueName)
	}

	nowMs := a.now().UnixMilli()

	query := `
		UPDATE messages
		SET
			queue = ?,
			is_dlq = FALSE,
			status = ?,
			attempts = 0,
			process_after = ?,
			processing_started_at = NULL,
			failure_reason = NULL,
			updated_at = ?,
			expires_after = ?
		WHERE queue = ? AND is_dlq = TRUE;`

	return a.exec(ctx, "requeue dead letter messages", query,
		strings.TrimSuffix(queueName, dlqSuffix), // queue = ?
		readyStatus,                              // status = ?
		nowMs,                                    // process_after = ?
		nowMs,                                    // updated_at = ?
		nowMs+a.queueTTLMs,                       // expires_after = ?
		queueName,                                // WHERE queue = ?
	)
}

// AvailableCommands returns the command names configured with the commands setting.
func (a *Adapter) AvailableCommands() []string {
	commands := make([]string, len(a.commands))
	copy(commands, a.commands)
	return commands
}

// SendCommand enqueues a message the same way the forq producer API does.
func (a *Adapter) SendCommand(ctx context.Context, destinationQueue, displayName, payload string) error {
	if strings.HasSuffix(destinationQueue, dlqSuffix) {
		return fmt.Errorf("cannot send to dead letter queue '%s'", destinationQueue)
	}

	content := payload
	if displayName != "" {
		envelope, err := json.Marshal(map[string]json.RawMessage{
			"type":    mustJSONString(displayName),
			"payload": asJSON(payload),
		})
		if err != nil {
			return fmt.Errorf("failed to encode command: %w", err)
		}
		content = string(envelope)
	}

	nowMs := a.now().UnixMilli()

	query := `
		INSERT INTO messages (id, queue, content, process_after, received_at, updated_at, expires_after)
		VALUES (?, ?, ?, ?, ?, ?, ?);`

	return a.exec(ctx, "insert message", query,
		uuid.NewString(),   // id
		destinationQueue,   // queue
		content,            // content
		nowMs,              // process_after
		nowMs,              // received_at
		nowMs,              // updated_at
		nowMs+a.queueTTLMs, // expires_after
	)
}

func (a *Adapter) exec(ctx context.Context, action, query string, params ...interface{}) error {
	if a.db == nil {
		return backend.ErrNotInitialized
	}
	if _, err := a.db.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return nil
}

func (a *Adapter) countMessages(ctx context.Context, names []string) (uint32, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM messages
		WHERE queue IN (%s) AND status != ?;`, placeholders(len(names)))

	var count uint32
	err := a.db.QueryRowContext(ctx, query, append(args(names), failedStatus)...).Scan(&count)
	return count, err
}

func (a *Adapter) selectMessages(ctx context.Context, names []string) ([]backend.Item, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, queue, content, status, attempts, received_at, failure_reason
		FROM messages
		WHERE queue IN (%s) AND status != ?
		ORDER BY received_at DESC
		LIMIT ?;`, placeholders(len(names)))

	params := append(args(names), failedStatus, a.maxItems)
	rows, err := a.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []backend.Item
	for rows.Next() {
		var (
			id, queueName, content string
			status, attempts       int
			receivedAt             int64
			failureReason          sql.NullString
		)
		if err := rows.Scan(&id, &queueName, &content, &status, &attempts, &receivedAt, &failureReason); err != nil {
			return nil, err
		}

		item := backend.Item{
			ID:          id,
			Queue:       a.queueIndex[queueName],
			ArrivedTime: time.UnixMilli(receivedAt).UTC(),
			DisplayName: displayName(content, queueName),
			Payload:     content,
			Headers: map[string]string{
				"status":   statusName(status),
				"attempts": strconv.Itoa(attempts),
			},
		}
		if failureReason.Valid {
			item.Headers["failureReason"] = failureReason.String
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// deadLetterQueuesOf returns the monitored error queues that collect the dead
// letters of the given queues.
func (a *Adapter) deadLetterQueuesOf(names []string) []string {
	var dlqs []string
	for _, name := range names {
		if q, ok := a.queueIndex[name+dlqSuffix]; ok && q.Category == backend.Error {
			dlqs = append(dlqs, q.Name)
		}
	}
	return dlqs
}

func (a *Adapter) connectionFailed(ctx context.Context, err error) (backend.FetchResult, error) {
	if ctx.Err() != nil {
		return backend.FetchResult{}, ctx.Err()
	}
	return backend.FetchResult{Status: backend.FetchConnectionFailed}, nil
}

func allKnown(items []backend.Item, known []backend.Item) bool {
	unprocessed := make(map[string]struct{}, len(known))
	for _, k := range known {
		if !k.Processed {
			unprocessed[k.ID] = struct{}{}
		}
	}
	for _, item := range items {
		if _, ok := unprocessed[item.ID]; !ok {
			return false
		}
	}
	return true
}

// displayName uses the "type" or "name" field of a JSON message and falls
// back to the queue name.
func displayName(content, queueName string) string {
	var envelope struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err == nil {
		if envelope.Type != "" {
			return envelope.Type
		}
		if envelope.Name != "" {
			return envelope.Name
		}
	}
	return strings.TrimSuffix(queueName, dlqSuffix)
}

func statusName(status int) string {
	switch status {
	case readyStatus:
		return "ready"
	case processingStatus:
		return "processing"
	case failedStatus:
		return "failed"
	default:
		return strconv.Itoa(status)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func args(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}

func mustJSONString(s string) json.RawMessage {
	encoded, _ := json.Marshal(s)
	return encoded
}

// asJSON embeds valid JSON as is and anything else as a string.
func asJSON(payload string) json.RawMessage {
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	return mustJSONString(payload)
}
