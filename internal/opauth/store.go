// Package opauth stores console operator accounts: bcrypt password
// hashes, TOTP secrets, and authorized SSH login keys. The store is a
// single JSON file reloaded when it changes on disk, so operator edits
// from the CLI are picked up by a running server.
package opauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Operator is a stored console account.
type Operator struct {
	Name         string   `json:"name"`
	PasswordHash string   `json:"password_hash"`
	TOTPSecret   string   `json:"totp_secret"`
	LoginPubKeys []string `json:"login_pubkeys,omitempty"`
}

// Seed creates an operator record when the store file does not exist yet.
type Seed struct {
	Name          string
	PasswordHash  string
	TOTPSecret    string
	AuthorizedKey string
}

// Store manages operators stored on disk.
type Store struct {
	path      string
	mu        sync.RWMutex
	operators map[string]Operator
	fileState fileState
	log       pslog.Logger
}

// NewStore loads or seeds the operator store.
func NewStore(path string, seeds []Seed) (*Store, error) {
	return NewStoreWithLogger(path, seeds, nil)
}

// NewStoreWithLogger loads or seeds the operator store with logging.
func NewStoreWithLogger(path string, seeds []Seed, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("operator file path is required")
	}
	if logger != nil {
		logger = logger.With("operator_file", path)
	}
	store := &Store{
		path:      path,
		operators: make(map[string]Operator),
		log:       logger,
	}
	if err := store.ensureFile(seeds); err != nil {
		return nil, err
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Authenticate verifies name, password, and totp.
func (s *Store) Authenticate(name, password, totpCode string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	s.mu.RLock()
	op, ok := s.operators[name]
	s.mu.RUnlock()
	if !ok {
		return schema.ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return schema.ErrBadCredentials
	}
	if !totp.Validate(totpCode, op.TOTPSecret) {
		return schema.ErrBadCredentials
	}
	return nil
}

// ValidateTOTP verifies the stored TOTP secret for an operator.
func (s *Store) ValidateTOTP(name string, totpCode string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateName(name)
	if err != nil {
		return err
	}
	s.mu.RLock()
	op, ok := s.operators[normalized]
	s.mu.RUnlock()
	if !ok {
		return schema.ErrBadCredentials
	}
	if !totp.Validate(totpCode, op.TOTPSecret) {
		return schema.ErrBadCredentials
	}
	return nil
}

// HasLoginPubKey reports whether the key is authorized for the operator.
func (s *Store) HasLoginPubKey(operatorID schema.OperatorID, key ssh.PublicKey) (bool, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return false, err
	}
	name, err := validateName(string(operatorID))
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	op, ok := s.operators[name]
	s.mu.RUnlock()
	if !ok {
		return false, schema.ErrOperatorNotFound
	}
	for _, raw := range op.LoginPubKeys {
		if keyEqual(raw, key) {
			return true, nil
		}
	}
	return false, nil
}

// AddLoginPubKey authorizes a login key and returns its 1-based index.
func (s *Store) AddLoginPubKey(operatorID schema.OperatorID, pubKey string) (int, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return 0, err
	}
	name, err := validateName(string(operatorID))
	if err != nil {
		return 0, err
	}
	normalized, parsed, err := normalizeLoginPubKey(pubKey)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[name]
	if !ok {
		return 0, schema.ErrOperatorNotFound
	}
	for idx, existing := range op.LoginPubKeys {
		if keyEqual(existing, parsed) {
			return idx + 1, errors.New("login pubkey already exists")
		}
	}
	op.LoginPubKeys = append(op.LoginPubKeys, normalized)
	s.operators[name] = op
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("opauth pubkey add failed", "operator", name, "err", err)
		}
		return 0, err
	}
	if s.log != nil {
		s.log.Info("opauth pubkey added", "operator", name, "id", len(op.LoginPubKeys))
	}
	return len(op.LoginPubKeys), nil
}

// ListLoginPubKeys returns the operator's authorized login keys.
func (s *Store) ListLoginPubKeys(operatorID schema.OperatorID) ([]string, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return nil, err
	}
	name, err := validateName(string(operatorID))
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	op, ok := s.operators[name]
	s.mu.RUnlock()
	if !ok {
		return nil, schema.ErrOperatorNotFound
	}
	return append([]string{}, op.LoginPubKeys...), nil
}

// RemoveLoginPubKey removes the login key at the provided 1-based index.
func (s *Store) RemoveLoginPubKey(operatorID schema.OperatorID, index int) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	name, err := validateName(string(operatorID))
	if err != nil {
		return err
	}
	if index <= 0 {
		return errors.New("login pubkey id must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[name]
	if !ok {
		return schema.ErrOperatorNotFound
	}
	if index > len(op.LoginPubKeys) {
		return errors.New("login pubkey id out of range")
	}
	op.LoginPubKeys = append(op.LoginPubKeys[:index-1], op.LoginPubKeys[index:]...)
	s.operators[name] = op
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("opauth pubkey remove failed", "operator", name, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("opauth pubkey removed", "operator", name, "id", index)
	}
	return nil
}

// LoadOperators returns a snapshot of operators sorted by name.
func (s *Store) LoadOperators() []Operator {
	if err := s.refreshIfNeeded(); err != nil {
		if s.log != nil {
			s.log.Warn("opauth store refresh failed", "err", err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	operators := make([]Operator, 0, len(s.operators))
	for _, op := range s.operators {
		operators = append(operators, op)
	}
	sort.Slice(operators, func(i, j int) bool { return operators[i].Name < operators[j].Name })
	return operators
}

// AddOperator inserts a new operator and persists the store.
func (s *Store) AddOperator(op Operator) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	name, err := validateName(op.Name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operators[name]; ok {
		return schema.ErrOperatorExists
	}
	op.Name = name
	s.operators[name] = op
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("opauth operator add failed", "operator", name, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("opauth operator added", "operator", name)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(name, passwordHash string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateName(name)
	if err != nil {
		return err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return errors.New("password hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[normalized]
	if !ok {
		return schema.ErrOperatorNotFound
	}
	op.PasswordHash = passwordHash
	s.operators[normalized] = op
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("opauth password update failed", "operator", normalized, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("opauth password updated", "operator", normalized)
	}
	return nil
}

// UpdateTOTP replaces the stored TOTP secret.
func (s *Store) UpdateTOTP(name, secret string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateName(name)
	if err != nil {
		return err
	}
	if strings.TrimSpace(secret) == "" {
		return errors.New("totp secret is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[normalized]
	if !ok {
		return schema.ErrOperatorNotFound
	}
	op.TOTPSecret = secret
	s.operators[normalized] = op
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("opauth totp update failed", "operator", normalized, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("opauth totp updated", "operator", normalized)
	}
	return nil
}

// DeleteOperator removes an operator.
func (s *Store) DeleteOperator(name string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operators[normalized]; !ok {
		return schema.ErrOperatorNotFound
	}
	delete(s.operators, normalized)
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("opauth operator delete failed", "operator", normalized, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("opauth operator deleted", "operator", normalized)
	}
	return nil
}

func (s *Store) ensureFile(seeds []Seed) error {
	if _, statErr := os.Stat(s.path); statErr == nil {
		return nil
	} else if !os.IsNotExist(statErr) {
		return statErr
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	operators := make([]Operator, 0, len(seeds))
	for _, seed := range seeds {
		if _, err := validateName(seed.Name); err != nil {
			return err
		}
		op := Operator{
			Name:         seed.Name,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		}
		if key := strings.TrimSpace(seed.AuthorizedKey); key != "" {
			op.LoginPubKeys = []string{key}
		}
		operators = append(operators, op)
	}
	data, err := json.MarshalIndent(operators, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("opauth store initialized", "operators", len(operators))
	}
	return nil
}

func validateName(name string) (string, error) {
	if err := schema.ValidateOperatorID(schema.OperatorID(name)); err != nil {
		return "", schema.ErrInvalidOperator
	}
	return name, nil
}

func (s *Store) saveLocked() error {
	names := make([]string, 0, len(s.operators))
	for name := range s.operators {
		names = append(names, name)
	}
	sort.Strings(names)
	operators := make([]Operator, 0, len(names))
	for _, name := range names {
		operators = append(operators, s.operators[name])
	}
	data, err := json.MarshalIndent(operators, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "operators-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	if info, err := os.Stat(s.path); err == nil {
		s.fileState = fileStateFromInfo(info)
	}
	if s.log != nil {
		s.log.Debug("opauth store save ok", "operators", len(operators))
	}
	return nil
}

type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var operators []Operator
	if err := json.Unmarshal(data, &operators); err != nil {
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	next := make(map[string]Operator, len(operators))
	for _, op := range operators {
		if _, err := validateName(op.Name); err != nil {
			return err
		}
		next[op.Name] = op
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operators = next
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("opauth store load ok", "operators", len(operators))
	}
	return nil
}

func normalizeLoginPubKey(raw string) (string, ssh.PublicKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil, errors.New("pubkey is required")
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(trimmed))
	if err != nil {
		return "", nil, errors.New("invalid pubkey")
	}
	return trimmed, key, nil
}

func keyEqual(raw string, key ssh.PublicKey) bool {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(raw)))
	if err != nil {
		return false
	}
	return bytes.Equal(parsed.Marshal(), key.Marshal())
}
