package store

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jmoiron/sqlx"
	"github.com/kabili207/pda-messenger/pkg/models"
)

var selectAccounts = `SELECT a.* FROM accounts a`

// AccountStore holds broker and admin logins.
type AccountStore interface {
	GetByID(id int) (*models.Account, error)
	GetByUserName(username string) (*models.Account, error)
	GetAll() ([]*models.Account, error)
	AddAccount(account *models.Account) error
	SetPassword(accountID int, passwordHash, salt string) error
	DeleteAccount(accountID int) error
	IsSuperuser(id int) (bool, error)
}

type postgresAccountStore struct {
	db *sqlx.DB

	suCache     map[int]bool
	suCacheLock sync.RWMutex
	// username -> account, so reconnecting terminals don't hit the database
	loginCache *ttlcache.Cache[string, *models.Account]
}

func NewAccounts(dbconn *sqlx.DB) AccountStore {
	cache := ttlcache.New[string, *models.Account](
		ttlcache.WithTTL[string, *models.Account](5 * time.Minute),
	)
	go cache.Start()
	return &postgresAccountStore{
		db:         dbconn,
		suCache:    make(map[int]bool),
		loginCache: cache,
	}
}

func (b *postgresAccountStore) GetByID(id int) (*models.Account, error) {
	stmt := selectAccounts + " WHERE a.id = $1;"
	var account models.Account
	err := b.db.Get(&account, stmt, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &account, err
}

func (b *postgresAccountStore) GetByUserName(username string) (*models.Account, error) {
	if item := b.loginCache.Get(username, ttlcache.WithDisableTouchOnHit[string, *models.Account]()); item != nil {
		return item.Value(), nil
	}
	slog.Debug("account cache miss, querying database", "username", username)
	stmt := selectAccounts + " WHERE a.username = $1;"
	var account models.Account
	err := b.db.Get(&account, stmt, username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.loginCache.Set(username, &account, ttlcache.DefaultTTL)
	return &account, nil
}

func (b *postgresAccountStore) GetAll() ([]*models.Account, error) {
	stmt := selectAccounts + " ORDER BY a.username;"
	var accounts []*models.Account
	err := b.db.Select(&accounts, stmt)
	if err == sql.ErrNoRows {
		return []*models.Account{}, nil
	}
	return accounts, err
}

func (b *postgresAccountStore) AddAccount(account *models.Account) error {
	stmt := `
	INSERT INTO accounts (username, display_name, password_hash, salt, station, is_superuser)
	VALUES (:username, :display_name, :password_hash, :salt, :station, :is_superuser);
	`

	_, err := b.db.NamedExec(stmt, account)
	return err
}

func (b *postgresAccountStore) SetPassword(accountID int, passwordHash, salt string) error {
	stmt := `
	UPDATE accounts
	SET password_hash = $1, salt = $2
	WHERE id = $3;
	`

	_, err := b.db.Exec(stmt, passwordHash, salt, accountID)
	if err == nil {
		b.invalidate(accountID)
	}
	return err
}

func (b *postgresAccountStore) DeleteAccount(accountID int) error {
	stmt := `DELETE FROM accounts WHERE id = $1;`

	_, err := b.db.Exec(stmt, accountID)
	if err == nil {
		b.invalidate(accountID)
	}
	return err
}

func (b *postgresAccountStore) IsSuperuser(id int) (bool, error) {
	b.suCacheLock.RLock()
	if isSU, ok := b.suCache[id]; ok {
		b.suCacheLock.RUnlock()
		return isSU, nil
	}
	b.suCacheLock.RUnlock()
	slog.Debug("IsSuperuser cache miss, querying database", "account_id", id)
	a, err := b.GetByID(id)
	if a != nil {
		b.suCacheLock.Lock()
		b.suCache[id] = a.IsSuperuser
		b.suCacheLock.Unlock()
		return a.IsSuperuser, nil
	}
	return false, err
}

func (b *postgresAccountStore) invalidate(accountID int) {
	b.suCacheLock.Lock()
	delete(b.suCache, accountID)
	b.suCacheLock.Unlock()
	b.loginCache.DeleteAll()
}
