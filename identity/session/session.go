// Package session keeps the signed-in session on disk and exposes it as an
// identity.Provider.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/goliatone/go-goal-cache/identity"
)

// ErrNoSession is returned by Load when nobody has signed in.
var ErrNoSession = errors.New("session: no active session")

var (
	bucketSession = []byte("session")
	currentKey    = []byte("current")
)

// Session is the persisted sign-in state.
type Session struct {
	UserID    string    `msgpack:"user_id"`
	Token     string    `msgpack:"token"`
	ExpiresAt time.Time `msgpack:"expires_at"`
}

// Store persists the current session in a bbolt file.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the session database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the current session.
func (s *Store) Save(ctx context.Context, sess Session) error {
	data, err := msgpack.Marshal(&sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Put(currentKey, data)
	})
}

// Load returns the current session or ErrNoSession.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	var sess *Session

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(currentKey)
		if data == nil {
			return ErrNoSession
		}

		sess = &Session{}
		if err := msgpack.Unmarshal(data, sess); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sess, nil
}

// Delete signs the user out.
func (s *Store) Delete(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(currentKey)
	})
}

// Claims are the token claims the client relies on.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionFromToken reads the user and expiry out of a bearer token. When
// secret is empty the signature is not checked.
func SessionFromToken(token string, secret []byte) (Session, error) {
	claims, err := parseClaims(token, secret)
	if err != nil {
		return Session{}, err
	}

	sess := Session{UserID: claims.UserID, Token: token}
	if sess.UserID == "" {
		sess.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	if sess.UserID == "" {
		return Session{}, errors.New("session: token carries no user id")
	}
	return sess, nil
}

func parseClaims(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	if len(secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("session: failed to parse token: %w", err)
		}
		return claims, nil
	}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: invalid token: %w", err)
	}
	return claims, nil
}

// Provider serves the stored session as the current identity.
type Provider struct {
	store  *Store
	secret []byte
	now    func() time.Time
}

// NewProvider creates a provider over store. secret may be nil.
func NewProvider(store *Store, secret []byte) *Provider {
	return &Provider{store: store, secret: secret, now: time.Now}
}

// CurrentUser implements identity.Provider.
func (p *Provider) CurrentUser(ctx context.Context) (*identity.User, error) {
	sess, err := p.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !sess.ExpiresAt.IsZero() && !p.now().Before(sess.ExpiresAt) {
		return nil, nil
	}

	if len(p.secret) > 0 {
		if _, err := parseClaims(sess.Token, p.secret); err != nil {
			return nil, err
		}
	}

	return &identity.User{ID: sess.UserID, Token: sess.Token}, nil
}
