package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/ec-store/internal/model"
)

const ordersCollection = "orders"

type orderLineDoc struct {
	ProductID int64                `bson:"product_id"`
	Quantity  int                  `bson:"quantity"`
	UnitPrice primitive.Decimal128 `bson:"unit_price"`
	Subtotal  primitive.Decimal128 `bson:"subtotal"`
}

type orderDoc struct {
	ID        string               `bson:"_id"`
	UserID    string               `bson:"user_id"`
	Lines     []orderLineDoc       `bson:"lines"`
	Total     primitive.Decimal128 `bson:"total"`
	Status    string               `bson:"status"`
	OrderedAt time.Time            `bson:"ordered_at"`
	CreatedAt time.Time            `bson:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

// MongoOrders stores each order as one document with its lines embedded.
type MongoOrders struct {
	coll *mongo.Collection
}

// ConnectMongo opens a client and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

// NewMongoOrders creates an order store on db's orders collection.
func NewMongoOrders(db *mongo.Database) *MongoOrders {
	return &MongoOrders{coll: db.Collection(ordersCollection)}
}

// EnsureIndexes creates the per-user listing index.
func (s *MongoOrders) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "_id", Value: -1}},
	})
	return err
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decimal %s: %w", v, err)
	}
	return d, nil
}

func newOrderDoc(o *model.Order) (orderDoc, error) {
	total, err := toDecimal128(o.Total)
	if err != nil {
		return orderDoc{}, err
	}
	doc := orderDoc{
		ID:        o.ID,
		UserID:    o.UserID,
		Lines:     make([]orderLineDoc, len(o.Lines)),
		Total:     total,
		Status:    string(o.Status),
		OrderedAt: o.OrderedAt,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for i, l := range o.Lines {
		line := orderLineDoc{ProductID: l.ProductID, Quantity: l.Quantity}
		if line.UnitPrice, err = toDecimal128(l.UnitPrice); err != nil {
			return orderDoc{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		if line.Subtotal, err = toDecimal128(l.Subtotal); err != nil {
			return orderDoc{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		doc.Lines[i] = line
	}
	return doc, nil
}

func (d orderDoc) order() (model.Order, error) {
	total, err := fromDecimal128(d.Total)
	if err != nil {
		return model.Order{}, fmt.Errorf("order %s: %w", d.ID, err)
	}
	o := model.Order{
		ID:        d.ID,
		UserID:    d.UserID,
		Lines:     make([]model.OrderLine, len(d.Lines)),
		Total:     total,
		Status:    model.OrderStatus(d.Status),
		OrderedAt: d.OrderedAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for i, l := range d.Lines {
		line := model.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity}
		if line.UnitPrice, err = fromDecimal128(l.UnitPrice); err != nil {
			return model.Order{}, fmt.Errorf("order %s line %d: %w", d.ID, i+1, err)
		}
		if line.Subtotal, err = fromDecimal128(l.Subtotal); err != nil {
			return model.Order{}, fmt.Errorf("order %s line %d: %w", d.ID, i+1, err)
		}
		o.Lines[i] = line
	}
	return o, nil
}

func (s *MongoOrders) SaveOrder(ctx context.Context, o *model.Order) error {
	doc, err := newOrderDoc(o)
	if err != nil {
		return err
	}
	_, err = s.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (s *MongoOrders) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var doc orderDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o, err := doc.order()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *MongoOrders) ListOrders(ctx context.Context, userID string, page PageRequest) (Page[model.Order], error) {
	page = page.Normalize()

	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return Page[model.Order]{}, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return Page[model.Order]{}, err
	}
	defer cur.Close(ctx)

	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return Page[model.Order]{}, err
	}
	orders := make([]model.Order, len(docs))
	for i, d := range docs {
		if orders[i], err = d.order(); err != nil {
			return Page[model.Order]{}, err
		}
	}
	return Page[model.Order]{Items: orders, Total: total, Page: page.Page, Size: page.Size}, nil
}

func (s *MongoOrders) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
