// Package mongo implements the record store on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"airpay/internal/models"
	"airpay/internal/store"
)

const (
	transactionsCollection = "transactions"
	accountsCollection     = "accounts"
	connectTimeout         = 10 * time.Second
)

var (
	_ store.TransactionStore = (*TransactionStore)(nil)
	_ store.AccountStore     = (*AccountStore)(nil)
)

// Mongo holds a client bound to one database
type Mongo struct {
	c  *mgo.Client
	db *mgo.Database
}

// New connects to uri and selects database
func New(ctx context.Context, uri, database string) (*Mongo, error) {
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot create mongo client for %s: %w", uri, err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging mongo DB: %w", err)
	}

	return &Mongo{c: c, db: c.Database(database)}, nil
}

// Close disconnects the client
func (m *Mongo) Close() error {
	return m.c.Disconnect(context.Background())
}

// Transactions returns the deposit log view
func (m *Mongo) Transactions() *TransactionStore {
	return &TransactionStore{col: m.db.Collection(transactionsCollection)}
}

// Accounts returns the account store view
func (m *Mongo) Accounts() *AccountStore {
	return &AccountStore{col: m.db.Collection(accountsCollection)}
}

// transactionDoc stores amounts as strings; bson has no decimal.Decimal codec
type transactionDoc struct {
	RecordID      string     `bson:"record_id"`
	UserID        string     `bson:"user_id"`
	WalletAddress string     `bson:"wallet_address"`
	PrivateKey    string     `bson:"private_key"`
	Amount        string     `bson:"amount"`
	Status        string     `bson:"status"`
	Balance       *string    `bson:"balance,omitempty"`
	SweepTxHash   *string    `bson:"sweep_tx_hash,omitempty"`
	Reason        *string    `bson:"reason,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     *time.Time `bson:"updated_at,omitempty"`
}

func newTransactionDoc(tx models.Transaction) transactionDoc {
	return transactionDoc{
		RecordID:      tx.ID,
		UserID:        tx.UserID,
		WalletAddress: tx.WalletAddress,
		PrivateKey:    tx.PrivateKey,
		Amount:        tx.Amount.String(),
		Status:        string(tx.Status),
		Balance:       tx.Balance,
		SweepTxHash:   tx.SweepTxHash,
		Reason:        tx.Reason,
		CreatedAt:     tx.CreatedAt,
		UpdatedAt:     tx.UpdatedAt,
	}
}

func (d transactionDoc) transaction() (models.Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("bad amount %q in record %s: %w", d.Amount, d.RecordID, err)
	}
	return models.Transaction{
		ID:            d.RecordID,
		UserID:        d.UserID,
		WalletAddress: d.WalletAddress,
		PrivateKey:    d.PrivateKey,
		Amount:        amount,
		Status:        models.DepositStatus(d.Status),
		Balance:       d.Balance,
		SweepTxHash:   d.SweepTxHash,
		Reason:        d.Reason,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

// TransactionStore is the deposit log collection
type TransactionStore struct {
	col *mgo.Collection
}

// LoadAll returns all entries in insertion order
func (s *TransactionStore) LoadAll(ctx context.Context) ([]models.Transaction, error) {
	cur, err := s.col.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query transactions: %w", store.ErrPersistence, err)
	}

	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: failed to decode transactions: %w", store.ErrPersistence, err)
	}

	txs := make([]models.Transaction, 0, len(docs))
	for _, d := range docs {
		tx, err := d.transaction()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrPersistence, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// Append inserts one entry
func (s *TransactionStore) Append(ctx context.Context, tx models.Transaction) error {
	if _, err := s.col.InsertOne(ctx, newTransactionDoc(tx)); err != nil {
		return fmt.Errorf("%w: failed to insert transaction %s: %w", store.ErrPersistence, tx.ID, err)
	}
	return nil
}

type accountDoc struct {
	UserID                 string   `bson:"user_id"`
	WalletAddress          string   `bson:"wallet_address"`
	PrivateKey             string   `bson:"private_key"`
	BulkWallets            []string `bson:"bulk_wallets,omitempty"`
	AwaitingBulkWallets    bool     `bson:"awaiting_bulk_wallets"`
	AwaitingTransferAmount bool     `bson:"awaiting_transfer_amount"`
}

func (d accountDoc) account() models.UserAccount {
	return models.UserAccount(d)
}

// AccountStore is the accounts collection
type AccountStore struct {
	col *mgo.Collection
}

// LoadAll returns all accounts
func (s *AccountStore) LoadAll(ctx context.Context) (map[string]models.UserAccount, error) {
	cur, err := s.col.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query accounts: %w", store.ErrPersistence, err)
	}

	var docs []accountDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: failed to decode accounts: %w", store.ErrPersistence, err)
	}

	accounts := make(map[string]models.UserAccount, len(docs))
	for _, d := range docs {
		accounts[d.UserID] = d.account()
	}
	return accounts, nil
}

// SaveAll replaces the collection content. Without a replica set this is
// two steps, not one atomic write.
func (s *AccountStore) SaveAll(ctx context.Context, accounts map[string]models.UserAccount) error {
	if _, err := s.col.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("%w: failed to clear accounts: %w", store.ErrPersistence, err)
	}
	if len(accounts) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(accounts))
	for id, a := range accounts {
		a.UserID = id
		docs = append(docs, accountDoc(a))
	}
	if _, err := s.col.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("%w: failed to insert accounts: %w", store.ErrPersistence, err)
	}
	return nil
}

// Get returns one account or store.ErrAccountNotFound
func (s *AccountStore) Get(ctx context.Context, userID string) (*models.UserAccount, error) {
	var doc accountDoc
	err := s.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account %s: %w", store.ErrPersistence, userID, err)
	}
	account := doc.account()
	return &account, nil
}

// Put upserts one account
func (s *AccountStore) Put(ctx context.Context, account models.UserAccount) error {
	_, err := s.col.ReplaceOne(ctx,
		bson.M{"user_id": account.UserID},
		accountDoc(account),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: failed to save account %s: %w", store.ErrPersistence, account.UserID, err)
	}
	return nil
}
