package accounts

import (
	"context"
	"sync"
	"time"
)

// Repository はアカウントの永続化を担います。
// ユーザー名の一意性はストア側で保証すること（アプリ側のロックには頼らない）。
type Repository interface {
	// Create は新規アカウントを保存します。ユーザー名が重複した場合は ErrUsernameTaken。
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	// UsernameTaken は excludeID 以外のアカウントが username を使っているかを返します。
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)
	// Update は LastLogin 以外の全フィールドを上書きします。ユーザー名が重複した場合は ErrUsernameTaken。
	Update(ctx context.Context, account *Account) error
	// RecordLogin は最終ログイン時刻が prev のままなら at に更新します。
	// 既に変わっていれば ErrLoginConflict、アカウントが無ければ ErrNotFound。
	RecordLogin(ctx context.Context, id string, prev, at time.Time) error
}

// MemoryRepository はプロセス内メモリにアカウントを保持します。テストとローカル開発用。
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*Account
	byUsername map[string]string
}

// NewMemoryRepository は空の MemoryRepository を作成します。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*Account),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[account.Username]; ok {
		return ErrUsernameTaken
	}
	r.byID[account.ID] = account.clone()
	r.byUsername[account.Username] = account.ID
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return account.clone(), nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return r.byID[id].clone(), nil
}

func (r *MemoryRepository) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	return ok && id != excludeID, nil
}

func (r *MemoryRepository) Update(ctx context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[account.ID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := r.byUsername[account.Username]; taken && owner != account.ID {
		return ErrUsernameTaken
	}
	delete(r.byUsername, current.Username)
	r.byUsername[account.Username] = account.ID
	updated := account.clone()
	updated.LastLogin = current.LastLogin
	r.byID[account.ID] = updated
	return nil
}

func (r *MemoryRepository) RecordLogin(ctx context.Context, id string, prev, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !current.LastLogin.Equal(prev) {
		return ErrLoginConflict
	}
	current.LastLogin = at
	return nil
}
