package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gcswan/ding/internal/domain"
)

const (
	qrKeyPrefix      = "ding:qr:"
	sessionKeyPrefix = "ding:session:"
	statusKeyPrefix  = "ding:sessions_by_status:"
	contactKeyPrefix = "ding:contact:"
)

func qrKey(id string) string           { return qrKeyPrefix + id }
func sessionKey(id string) string      { return sessionKeyPrefix + id }
func contactKey(ownerID string) string { return contactKeyPrefix + ownerID }

func statusKey(s domain.SessionStatus) string {
	return statusKeyPrefix + string(s)
}

// Lua scripts for atomic session operations. Records are stored as JSON
// strings; a per-status set indexes session IDs so the expiry sweeper can
// enumerate pending sessions without scanning the keyspace.

// createSessionScript creates the record only if the ID is unused and adds
// it to its status index.
// KEYS: [1]=session key, [2]=status index key; ARGV: [1]=json, [2]=session id
var createSessionScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// recordScanScript bumps scan_count and stamps last_scanned in one step.
// KEYS: [1]=qr key; ARGV: [1]=timestamp (RFC 3339)
var recordScanScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return 0 end
local qr = cjson.decode(raw)
qr['scan_count'] = (qr['scan_count'] or 0) + 1
qr['last_scanned'] = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(qr))
return 1
`)

// updateSessionScript merges a patch field-wise and moves the record between
// status indexes when the status changes. Returns the new snapshot.
// KEYS: [1]=session key; ARGV: [1]=patch json, [2]=status index key prefix
var updateSessionScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return {err = 'NOTFOUND'} end
local session = cjson.decode(raw)
local patch = cjson.decode(ARGV[1])
local old_status = session['status']
for k, v in pairs(patch) do session[k] = v end
local encoded = cjson.encode(session)
redis.call('SET', KEYS[1], encoded)
if session['status'] ~= old_status then
	redis.call('SREM', ARGV[2] .. old_status, session['session_id'])
	redis.call('SADD', ARGV[2] .. session['status'], session['session_id'])
end
return encoded
`)

// transitionSessionScript is updateSessionScript guarded by a status
// compare. This is the serialization point for concurrent responds and the
// expiry race: exactly one caller wins, every other sees INVALIDSTATE.
// KEYS: [1]=session key; ARGV: [1]=patch json, [2]=expected status, [3]=status index key prefix
var transitionSessionScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return {err = 'NOTFOUND'} end
local session = cjson.decode(raw)
if session['status'] ~= ARGV[2] then return {err = 'INVALIDSTATE'} end
local patch = cjson.decode(ARGV[1])
local old_status = session['status']
for k, v in pairs(patch) do session[k] = v end
local encoded = cjson.encode(session)
redis.call('SET', KEYS[1], encoded)
if session['status'] ~= old_status then
	redis.call('SREM', ARGV[3] .. old_status, session['session_id'])
	redis.call('SADD', ARGV[3] .. session['status'], session['session_id'])
end
return encoded
`)

// Store implements domain.Store on Redis.
type Store struct {
	rdb *goredis.Client
}

func NewStore(client *Client) *Store {
	return &Store{rdb: client.rdb}
}

// --- QR codes ---

func (s *Store) CreateQRCode(ctx context.Context, qr domain.QRCode) error {
	data, err := json.Marshal(qr)
	if err != nil {
		return fmt.Errorf("failed to marshal qr code: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, qrKey(qr.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create qr code: %w", err)
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetQRCode(ctx context.Context, id string) (domain.QRCode, error) {
	raw, err := s.rdb.Get(ctx, qrKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.QRCode{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.QRCode{}, fmt.Errorf("failed to get qr code: %w", err)
	}

	var qr domain.QRCode
	if err := json.Unmarshal([]byte(raw), &qr); err != nil {
		return domain.QRCode{}, fmt.Errorf("failed to unmarshal qr code: %w", err)
	}
	return qr, nil
}

func (s *Store) RecordScan(ctx context.Context, id string, at time.Time) error {
	found, err := recordScanScript.Run(ctx, s.rdb, []string{qrKey(id)},
		at.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("record scan script failed: %w", err)
	}
	if found == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	created, err := createSessionScript.Run(ctx, s.rdb,
		[]string{sessionKey(sess.ID), statusKey(sess.Status)},
		data, sess.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("create session script failed: %w", err)
	}
	if created == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return domain.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (domain.Session, error) {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to marshal patch: %w", err)
	}

	raw, err := updateSessionScript.Run(ctx, s.rdb, []string{sessionKey(id)},
		patchJSON, statusKeyPrefix,
	).Text()
	if err != nil {
		return domain.Session{}, translateScriptError(err, "update session")
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return domain.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *Store) TransitionSession(ctx context.Context, id string, from domain.SessionStatus, patch domain.SessionPatch) (domain.Session, error) {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to marshal patch: %w", err)
	}

	raw, err := transitionSessionScript.Run(ctx, s.rdb, []string{sessionKey(id)},
		patchJSON, string(from), statusKeyPrefix,
	).Text()
	if err != nil {
		return domain.Session{}, translateScriptError(err, "transition session")
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return domain.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessionsByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.Session, error) {
	ids, err := s.rdb.SMembers(ctx, statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}

	var out []domain.Session
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sess domain.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		// The index can briefly lag the record during a transition
		if sess.Status == status {
			out = append(out, sess)
		}
	}
	return out, nil
}

// --- Owner contacts ---

func (s *Store) UpsertOwnerContact(ctx context.Context, c domain.OwnerContact) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal owner contact: %w", err)
	}
	if err := s.rdb.Set(ctx, contactKey(c.OwnerID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to upsert owner contact: %w", err)
	}
	return nil
}

func (s *Store) GetOwnerContact(ctx context.Context, ownerID string) (domain.OwnerContact, error) {
	raw, err := s.rdb.Get(ctx, contactKey(ownerID)).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.OwnerContact{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OwnerContact{}, fmt.Errorf("failed to get owner contact: %w", err)
	}

	var c domain.OwnerContact
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return domain.OwnerContact{}, fmt.Errorf("failed to unmarshal owner contact: %w", err)
	}
	return c, nil
}

func translateScriptError(err error, op string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOTFOUND"):
		return domain.ErrNotFound
	case strings.Contains(msg, "INVALIDSTATE"):
		return domain.ErrInvalidState
	default:
		return fmt.Errorf("%s script failed: %w", op, err)
	}
}
